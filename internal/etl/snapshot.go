package etl

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"whoopsync/internal/schema"
)

// WriteSnapshot writes a normalized batch as a flat delimited file,
// one per record type and run. The file is never read back by the
// pipeline.
func WriteSnapshot(dir string, batch Batch, rt schema.RecordType) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	table := schema.TableFor(rt)
	cols := table.ColumnNames()

	path := filepath.Join(dir, table.Name+"_data.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(cols))
	for _, rec := range batch {
		for i, col := range cols {
			row[i] = formatCSVValue(rec.Data[col])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// formatCSVValue renders a normalized value for the snapshot. The
// absent marker becomes an empty field.
func formatCSVValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
