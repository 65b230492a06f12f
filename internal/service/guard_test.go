package service

import (
	"context"
	"testing"
	"time"
)

func TestRunGuardSingleRun(t *testing.T) {
	var g runGuard
	if !g.TryLock() {
		t.Fatal("first TryLock failed")
	}
	// A second trigger while a run is in flight is skipped.
	if g.TryLock() {
		t.Fatal("second TryLock succeeded while running")
	}
	g.Unlock()
	if !g.TryLock() {
		t.Fatal("TryLock failed after Unlock")
	}
	g.Unlock()
}

func TestRunGuardWaitImmediate(t *testing.T) {
	var g runGuard
	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		g.Wait(ctx)
		close(done)
	}()
	select {
	case <-done:
		// expected — nothing running
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Wait hung with no run in flight")
	}
}

func TestRunGuardWaitBlocksUntilUnlock(t *testing.T) {
	var g runGuard
	if !g.TryLock() {
		t.Fatal("TryLock failed")
	}

	done := make(chan struct{})
	go func() {
		g.Wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while run in flight")
	case <-time.After(50 * time.Millisecond):
	}

	g.Unlock()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Wait did not return after Unlock")
	}
}

func TestRunGuardWaitRespectsContext(t *testing.T) {
	var g runGuard
	if !g.TryLock() {
		t.Fatal("TryLock failed")
	}
	defer g.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		g.Wait(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Wait ignored context cancellation")
	}
}
