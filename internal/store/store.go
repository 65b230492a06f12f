package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ── Warehouse ──────────────────────────────────────────────
// Relational target for the pipeline. One Warehouse per run; the
// upsert writer is the only component with update access to the fact
// tables.

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Warehouse wraps the target database connection.
type Warehouse struct {
	db     *sql.DB
	driver string
}

// Open connects to the warehouse using the given driver and DSN.
func Open(driver, dsn string) (*Warehouse, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite only supports one writer — limit to a single
		// connection to prevent SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	return &Warehouse{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

// DB returns the underlying connection.
func (w *Warehouse) DB() *sql.DB {
	return w.db
}

// quoteIdent quotes an identifier for the active dialect. Several fact
// columns (start, end) are reserved words.
func (w *Warehouse) quoteIdent(name string) string {
	if w.driver == DriverMySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// placeholder returns the bind placeholder for the n-th argument (1-based).
func (w *Warehouse) placeholder(n int) string {
	if w.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// quoteAll quotes a list of identifiers and joins them with commas.
func (w *Warehouse) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = w.quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
