package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunLog is the persisted outcome of one record type within one run.
type RunLog struct {
	ID          string
	RunID       string
	RecordType  string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string // "success" | "fetch-error" | "validation-error" | "storage-error"
	RowsFetched int
	RowsWritten int
	Error       string
}

// CreateRunLog inserts a run-log row.
func (w *Warehouse) CreateRunLog(ctx context.Context, rl *RunLog) error {
	if rl.ID == "" {
		rl.ID = uuid.New().String()
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		w.quoteIdent("ingest_runs"),
		w.quoteIdent("id"), w.quoteIdent("run_id"), w.quoteIdent("record_type"),
		w.quoteIdent("started_at"), w.quoteIdent("finished_at"), w.quoteIdent("status"),
		w.quoteIdent("rows_fetched"), w.quoteIdent("rows_written"), w.quoteIdent("error"),
		w.placeholder(1), w.placeholder(2), w.placeholder(3),
		w.placeholder(4), w.placeholder(5), w.placeholder(6),
		w.placeholder(7), w.placeholder(8), w.placeholder(9))

	_, err := w.db.ExecContext(ctx, stmt,
		rl.ID, rl.RunID, rl.RecordType,
		rl.StartedAt.UTC(), rl.FinishedAt.UTC(), rl.Status,
		rl.RowsFetched, rl.RowsWritten, rl.Error)
	if err != nil {
		return fmt.Errorf("create run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the most recent run-log rows, newest first.
func (w *Warehouse) ListRunLogs(ctx context.Context, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	stmt := fmt.Sprintf(`SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s ORDER BY %s DESC LIMIT %d`,
		w.quoteIdent("id"), w.quoteIdent("run_id"), w.quoteIdent("record_type"),
		w.quoteIdent("started_at"), w.quoteIdent("finished_at"), w.quoteIdent("status"),
		w.quoteIdent("rows_fetched"), w.quoteIdent("rows_written"), w.quoteIdent("error"),
		w.quoteIdent("ingest_runs"), w.quoteIdent("started_at"), limit)

	rows, err := w.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var rl RunLog
		var started, finished any
		if err := rows.Scan(&rl.ID, &rl.RunID, &rl.RecordType,
			&started, &finished, &rl.Status,
			&rl.RowsFetched, &rl.RowsWritten, &rl.Error); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		rl.StartedAt = scanTime(started)
		rl.FinishedAt = scanTime(finished)
		logs = append(logs, rl)
	}
	return logs, rows.Err()
}

func scanTime(v any) time.Time {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC()
	case string:
		t, _, _ := parseStoredTime(ts)
		return t
	case []byte:
		t, _, _ := parseStoredTime(string(ts))
		return t
	default:
		return time.Time{}
	}
}
