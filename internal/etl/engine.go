package etl

import (
	"context"
	"errors"
	"log"
	"time"

	"whoopsync/internal/auth"
	"whoopsync/internal/schema"
)

// ── Engine ─────────────────────────────────────────────────
// Orchestrates fetch → normalize → validate → write per record type.
// Record types run sequentially in dependency order; one type's
// failure is recorded and the engine moves on to the next type.

// Window bounds one pipeline run: records in [Start, End) are fetched.
type Window struct {
	Start time.Time
	End   time.Time
}

// Fetcher retrieves all raw records of a type within a window.
type Fetcher interface {
	FetchAll(ctx context.Context, rt schema.RecordType, window Window) (Batch, error)
}

// Writer persists a normalized batch into the record type's table.
type Writer interface {
	Upsert(ctx context.Context, batch Batch, rt schema.RecordType) (int, error)
}

// Per-type outcome statuses.
const (
	StatusSuccess         = "success"
	StatusFetchError      = "fetch-error"
	StatusValidationError = "validation-error"
	StatusStorageError    = "storage-error"
)

// RunResult is the outcome of one record type within one run.
type RunResult struct {
	RecordType  schema.RecordType
	Status      string
	RowsFetched int
	RowsWritten int
	Duration    time.Duration
	Err         error
}

// Failed reports whether the record type's pipeline did not complete.
func (r RunResult) Failed() bool { return r.Status != StatusSuccess }

// Engine runs the ingestion pipeline.
type Engine struct {
	Fetch Fetcher
	Write Writer

	// SnapshotDir, when non-empty, receives one CSV file per record
	// type with the run's normalized batch. Observational only.
	SnapshotDir string
}

// Run executes the pipeline for every record type over the window.
// A failed auth refresh aborts the remaining types since no stage can
// proceed without a token; every other failure is isolated to its own
// record type.
func (e *Engine) Run(ctx context.Context, window Window) []RunResult {
	results := make([]RunResult, 0, len(schema.RecordTypes))
	for i, rt := range schema.RecordTypes {
		res := e.runOne(ctx, rt, window)
		results = append(results, res)

		var authErr *auth.AuthError
		if res.Err != nil && errors.As(res.Err, &authErr) {
			log.Printf("pipeline: auth failed on %s, aborting run: %v", rt, res.Err)
			for _, rest := range schema.RecordTypes[i+1:] {
				results = append(results, RunResult{
					RecordType: rest,
					Status:     StatusFetchError,
					Err:        res.Err,
				})
			}
			break
		}
	}
	return results
}

func (e *Engine) runOne(ctx context.Context, rt schema.RecordType, window Window) RunResult {
	start := time.Now()
	res := RunResult{RecordType: rt}

	raw, err := e.Fetch.FetchAll(ctx, rt, window)
	if err != nil {
		res.Status = StatusFetchError
		res.Err = err
		res.Duration = time.Since(start)
		log.Printf("pipeline: %s fetch failed: %v", rt, err)
		return res
	}
	res.RowsFetched = len(raw)

	batch := Normalize(raw, rt)

	if err := Validate(batch, rt); err != nil {
		res.Status = StatusValidationError
		res.Err = err
		res.Duration = time.Since(start)
		log.Printf("pipeline: %s rejected: %v", rt, err)
		return res
	}

	if e.SnapshotDir != "" {
		if err := WriteSnapshot(e.SnapshotDir, batch, rt); err != nil {
			// Snapshots are observational; a failed one does not fail the run.
			log.Printf("pipeline: %s snapshot failed: %v", rt, err)
		}
	}

	written, err := e.Write.Upsert(ctx, batch, rt)
	if err != nil {
		res.Status = StatusStorageError
		res.Err = err
		res.Duration = time.Since(start)
		log.Printf("pipeline: %s write failed: %v", rt, err)
		return res
	}

	res.Status = StatusSuccess
	res.RowsWritten = written
	res.Duration = time.Since(start)
	log.Printf("pipeline: %s ok, %d fetched, %d written in %s", rt, res.RowsFetched, written, res.Duration)
	return res
}
