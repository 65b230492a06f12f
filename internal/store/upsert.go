package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whoopsync/internal/etl"
	"whoopsync/internal/schema"
)

// upsertChunkRows bounds the number of rows per INSERT statement so
// the bind-parameter count stays well inside every dialect's limit.
const upsertChunkRows = 200

// StorageError reports a write-time constraint or connectivity
// failure. The unit of work is rolled back in full when it occurs.
type StorageError struct {
	RecordType schema.RecordType
	Rows       int
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: upsert %d %s rows: %v", e.Rows, e.RecordType, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Upsert writes a normalized batch into the record type's fact table:
// insert, or on primary-key conflict overwrite every non-key column
// with the incoming value. The whole batch is one transaction — either
// every row is durably applied or none are. An empty batch is a no-op.
func (w *Warehouse) Upsert(ctx context.Context, batch etl.Batch, rt schema.RecordType) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	table := schema.TableFor(rt)
	cols := table.ColumnNames()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{RecordType: rt, Rows: len(batch), Err: err}
	}
	defer tx.Rollback()

	written := 0
	for start := 0; start < len(batch); start += upsertChunkRows {
		end := start + upsertChunkRows
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		stmt, args := w.upsertStatement(table, cols, chunk)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, &StorageError{RecordType: rt, Rows: len(batch), Err: err}
		}
		written += len(chunk)
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{RecordType: rt, Rows: len(batch), Err: err}
	}
	return written, nil
}

// upsertStatement builds one multi-row insert-or-update statement and
// its bind arguments. Each row is projected onto exactly the table's
// column list; the absent-value marker becomes a storage-level NULL.
func (w *Warehouse) upsertStatement(table *schema.Table, cols []string, chunk etl.Batch) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(chunk)*len(cols))

	sb.WriteString("INSERT INTO ")
	sb.WriteString(w.quoteIdent(table.Name))
	sb.WriteString(" (")
	sb.WriteString(w.quoteAll(cols))
	sb.WriteString(") VALUES ")

	n := 0
	for i, rec := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			n++
			sb.WriteString(w.placeholder(n))
			args = append(args, rec.Data[col])
		}
		sb.WriteString(")")
	}

	updatable := make([]string, 0, len(cols))
	for _, col := range cols {
		if !table.IsPrimaryKey(col) {
			updatable = append(updatable, col)
		}
	}

	if w.driver == DriverMySQL {
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, col := range updatable {
			if i > 0 {
				sb.WriteString(", ")
			}
			q := w.quoteIdent(col)
			sb.WriteString(q + " = VALUES(" + q + ")")
		}
	} else {
		sb.WriteString(" ON CONFLICT (")
		sb.WriteString(w.quoteAll(table.PrimaryKey))
		sb.WriteString(") DO UPDATE SET ")
		for i, col := range updatable {
			if i > 0 {
				sb.WriteString(", ")
			}
			q := w.quoteIdent(col)
			sb.WriteString(q + " = excluded." + q)
		}
	}

	return sb.String(), args
}

// MaxCreatedAt returns the newest created_at in fact_cycle, used to
// derive the next run's window start. ok is false when the table is
// empty.
func (w *Warehouse) MaxCreatedAt(ctx context.Context) (t time.Time, ok bool, err error) {
	row := w.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(%s) FROM %s", w.quoteIdent("created_at"), w.quoteIdent("fact_cycle")))

	var v any
	if err := row.Scan(&v); err != nil {
		return time.Time{}, false, fmt.Errorf("max created_at: %w", err)
	}
	switch ts := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return ts.UTC(), true, nil
	case string:
		return parseStoredTime(ts)
	case []byte:
		return parseStoredTime(string(ts))
	default:
		return time.Time{}, false, fmt.Errorf("max created_at: unexpected type %T", v)
	}
}

// parseStoredTime handles drivers that return DATETIME columns as text.
func parseStoredTime(s string) (time.Time, bool, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("max created_at: cannot parse %q", s)
}
