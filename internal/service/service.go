package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"whoopsync/internal/config"
	"whoopsync/internal/etl"
	"whoopsync/internal/store"
)

// ─────────────────────────────────────────────────────────────
// Sync service — owns pipeline runs, the cron schedule, and the
// config-file watcher that rebuilds the schedule on edit.
// ─────────────────────────────────────────────────────────────

// TokenChecker verifies a live token is available before a run starts.
type TokenChecker interface {
	AccessToken(ctx context.Context) (string, error)
}

// Service runs the ingestion pipeline on demand or on a schedule.
type Service struct {
	cfg        *config.Config
	configPath string
	warehouse  *store.Warehouse
	tokens     TokenChecker
	engine     *etl.Engine
	guard      runGuard

	mu        sync.Mutex
	cronSched *cron.Cron
	watcher   *fsnotify.Watcher
}

// New creates a Service. configPath may be empty when no file is used;
// the schedule watcher is then disabled.
func New(cfg *config.Config, configPath string, warehouse *store.Warehouse, tokens TokenChecker, engine *etl.Engine) *Service {
	return &Service{
		cfg:        cfg,
		configPath: configPath,
		warehouse:  warehouse,
		tokens:     tokens,
		engine:     engine,
	}
}

// ── Run ────────────────────────────────────────────────────

// RunOnce executes one full pipeline run. override, when non-nil,
// replaces the derived time window. A failed token check halts the run
// before any record type is processed.
func (s *Service) RunOnce(ctx context.Context, override *etl.Window) ([]etl.RunResult, error) {
	if !s.guard.TryLock() {
		return nil, fmt.Errorf("a pipeline run is already in progress")
	}
	defer s.guard.Unlock()

	if _, err := s.tokens.AccessToken(ctx); err != nil {
		return nil, err
	}

	window := etl.Window{}
	if override != nil {
		window = *override
	} else {
		w, err := s.resolveWindow(ctx)
		if err != nil {
			return nil, err
		}
		window = w
	}
	log.Printf("sync: fetching data from %s to %s",
		window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))

	runID := uuid.New().String()
	started := time.Now()
	results := s.engine.Run(ctx, window)

	for _, res := range results {
		rl := &store.RunLog{
			RunID:       runID,
			RecordType:  string(res.RecordType),
			StartedAt:   started,
			FinishedAt:  time.Now(),
			Status:      res.Status,
			RowsFetched: res.RowsFetched,
			RowsWritten: res.RowsWritten,
		}
		if res.Err != nil {
			rl.Error = res.Err.Error()
		}
		if err := s.warehouse.CreateRunLog(ctx, rl); err != nil {
			log.Printf("sync: record run log for %s: %v", res.RecordType, err)
		}
	}
	return results, nil
}

// resolveWindow derives the run's time window: start is the newest
// stored cycle minus the lookback, floored at the configured epoch
// when the warehouse is empty; end is a day behind now so partial
// same-day records are not ingested.
func (s *Service) resolveWindow(ctx context.Context) (etl.Window, error) {
	floor, err := s.cfg.EpochFloorTime()
	if err != nil {
		return etl.Window{}, err
	}

	start := floor
	maxCreated, ok, err := s.warehouse.MaxCreatedAt(ctx)
	if err != nil {
		return etl.Window{}, err
	}
	if ok {
		lookback := time.Duration(s.cfg.Pipeline.LookbackDays) * 24 * time.Hour
		start = maxCreated.Add(-lookback)
		if start.Before(floor) {
			start = floor
		}
	}

	end := time.Now().UTC().Add(-24 * time.Hour)
	return etl.Window{Start: start, End: end}, nil
}

// ── Schedule ───────────────────────────────────────────────

// Start brings up the cron schedule (if configured) and the config
// watcher. It returns immediately; runs happen on cron goroutines.
func (s *Service) Start(ctx context.Context) error {
	s.restartSchedule(ctx)

	if s.configPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go s.watchConfig(ctx, watcher)
	return nil
}

func (s *Service) watchConfig(ctx context.Context, watcher *fsnotify.Watcher) {
	target, _ := filepath.Abs(s.configPath)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			evPath, _ := filepath.Abs(ev.Name)
			if evPath != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(s.configPath)
			if err != nil {
				log.Printf("sync: config reload failed, keeping old schedule: %v", err)
				continue
			}
			log.Printf("sync: config changed, rebuilding schedule")
			s.mu.Lock()
			s.cfg.Pipeline.Schedule = cfg.Pipeline.Schedule
			s.mu.Unlock()
			s.restartSchedule(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("sync: config watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) restartSchedule(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}

	expr := s.cfg.Pipeline.Schedule
	if expr == "" {
		return
	}

	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		results, err := s.RunOnce(ctx, nil)
		if err != nil {
			log.Printf("sync cron: run failed: %v", err)
			return
		}
		LogSummary(results)
	})
	if err != nil {
		log.Printf("sync cron: invalid expression %q: %v", expr, err)
		return
	}
	c.Start()
	s.cronSched = c
	log.Printf("sync cron: scheduled %q", expr)
}

// Stop tears down the schedule and watcher and waits for an in-flight
// run to finish.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.mu.Unlock()

	s.guard.Wait(ctx)
}

// LogSummary prints the per-record-type pass/fail summary for a run.
func LogSummary(results []etl.RunResult) {
	for _, res := range results {
		if res.Failed() {
			log.Printf("sync: %-8s %s: %v", res.RecordType, res.Status, res.Err)
			continue
		}
		log.Printf("sync: %-8s ok (%d rows written)", res.RecordType, res.RowsWritten)
	}
}
