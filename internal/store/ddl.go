package store

import (
	"context"
	"fmt"
	"strings"

	"whoopsync/internal/schema"
)

// ── DDL ────────────────────────────────────────────────────
// Creates the fact tables from the schema registry plus the pipeline's
// own meta tables (tokens, run history). Idempotent: everything is
// CREATE TABLE IF NOT EXISTS.

// Migrate creates all warehouse tables if they do not already exist.
func (w *Warehouse) Migrate(ctx context.Context) error {
	stmts := make([]string, 0, len(schema.RecordTypes)+2)
	for _, rt := range schema.RecordTypes {
		stmts = append(stmts, w.createTableDDL(schema.TableFor(rt)))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider %s PRIMARY KEY,
			access_token %s NOT NULL,
			refresh_token %s NOT NULL,
			expires_at %s NOT NULL,
			updated_at %s NOT NULL
		)`, w.sqlType(schema.TypeString, true), w.sqlType(schema.TypeString, false),
			w.sqlType(schema.TypeString, false), w.sqlType(schema.TypeDatetime, false),
			w.sqlType(schema.TypeDatetime, false)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingest_runs (
			id %s PRIMARY KEY,
			run_id %s NOT NULL,
			record_type %s NOT NULL,
			started_at %s NOT NULL,
			finished_at %s NOT NULL,
			status %s NOT NULL,
			rows_fetched %s NOT NULL,
			rows_written %s NOT NULL,
			error %s NOT NULL
		)`, w.sqlType(schema.TypeString, true), w.sqlType(schema.TypeString, true),
			w.sqlType(schema.TypeString, true), w.sqlType(schema.TypeDatetime, false),
			w.sqlType(schema.TypeDatetime, false), w.sqlType(schema.TypeString, true),
			w.sqlType(schema.TypeInteger, false), w.sqlType(schema.TypeInteger, false),
			w.sqlType(schema.TypeString, false)),
	)

	for _, stmt := range stmts {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (w *Warehouse) createTableDDL(table *schema.Table) string {
	cols := make([]string, 0, len(table.Columns)+1)
	for _, c := range table.Columns {
		def := w.quoteIdent(c.Name) + " " + w.sqlType(c.Type, table.IsPrimaryKey(c.Name))
		if !c.Nullable && !table.IsPrimaryKey(c.Name) {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols, "PRIMARY KEY ("+w.quoteAll(table.PrimaryKey)+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		w.quoteIdent(table.Name), strings.Join(cols, ",\n\t"))
}

// sqlType maps a schema type category to the dialect's column type.
// keyed marks columns used in a primary key, where MySQL requires a
// bounded VARCHAR instead of TEXT.
func (w *Warehouse) sqlType(t schema.Type, keyed bool) string {
	switch w.driver {
	case DriverPostgres:
		switch t {
		case schema.TypeDatetime:
			return "TIMESTAMP"
		case schema.TypeInteger:
			return "BIGINT"
		case schema.TypeFloat:
			return "DOUBLE PRECISION"
		case schema.TypeBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	case DriverMySQL:
		switch t {
		case schema.TypeDatetime:
			return "DATETIME"
		case schema.TypeInteger:
			return "BIGINT"
		case schema.TypeFloat:
			return "DOUBLE"
		case schema.TypeBoolean:
			return "BOOLEAN"
		default:
			if keyed {
				return "VARCHAR(64)"
			}
			return "TEXT"
		}
	default: // sqlite
		switch t {
		case schema.TypeDatetime:
			return "DATETIME"
		case schema.TypeInteger:
			return "INTEGER"
		case schema.TypeFloat:
			return "REAL"
		case schema.TypeBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	}
}
