package service

import (
	"context"
	"sync"
)

// runGuard ensures only one pipeline run executes at a time. Scheduled
// triggers that fire while a run is in flight are skipped, not queued.
type runGuard struct {
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// TryLock attempts to mark the pipeline as running.
func (g *runGuard) TryLock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	g.wg.Add(1)
	return true
}

// Unlock marks the pipeline as idle. Must follow a successful TryLock.
func (g *runGuard) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
	g.wg.Done()
}

// Wait blocks until the in-flight run completes or ctx is cancelled.
func (g *runGuard) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
