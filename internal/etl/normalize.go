package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"whoopsync/internal/schema"
)

// ── Normalizer ─────────────────────────────────────────────
// Reshapes raw flattened API records into rows matching the schema
// registry for a record type. Pure transformation, no I/O. The steps
// are composable: each takes a record and returns a modified record.

// Step processes a single record in the normalization chain.
type Step interface {
	Apply(Record) Record
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc func(Record) Record

func (f StepFunc) Apply(r Record) Record { return f(r) }

// Normalize runs the full normalization chain for a record type over a
// batch. The result carries exactly the schema's column set: unknown
// raw fields are dropped, missing schema columns are present with nil.
// Normalizing an already-normalized batch is a no-op.
func Normalize(batch Batch, rt schema.RecordType) Batch {
	table := schema.TableFor(rt)
	steps := []Step{
		StepFunc(func(r Record) Record { return resolveColumnNames(r, rt) }),
		StepFunc(convertTimezoneOffset),
		StepFunc(func(r Record) Record { return coerceTypes(r, table) }),
		StepFunc(func(r Record) Record { return projectColumns(r, table) }),
	}

	out := make(Batch, 0, len(batch))
	for _, rec := range batch {
		for _, s := range steps {
			rec = s.Apply(rec)
		}
		out = append(out, rec)
	}
	return out
}

// resolveColumnNames maps raw dotted field names onto schema column
// names: the last path segment wins, except the sleep type's
// sleep_needed.* subtree which keeps its prefix because its suffixes
// (baseline_milli etc.) collide with sibling counters. The raw "id"
// field becomes the record type's primary key column and the API's
// "score_state" maps to the persisted "state" column.
func resolveColumnNames(r Record, rt schema.RecordType) Record {
	data := make(map[string]any, len(r.Data))
	for key, v := range r.Data {
		data[columnName(key, rt)] = v
	}
	return Record{Data: data}
}

func columnName(key string, rt schema.RecordType) string {
	segs := strings.Split(key, ".")
	name := segs[len(segs)-1]
	if rt == schema.RecordSleep {
		for _, s := range segs[:len(segs)-1] {
			if s == "sleep_needed" {
				name = "sleep_needed_" + name
				break
			}
		}
	}
	switch name {
	case "id":
		return string(rt) + "_id"
	case "score_state":
		return "state"
	}
	return name
}

// convertTimezoneOffset turns a signed "±HH:MM" offset into a signed
// minute count. Malformed or absent offsets coerce to 0, never error.
// An already-converted integer passes through unchanged.
func convertTimezoneOffset(r Record) Record {
	v, ok := r.Data["timezone_offset"]
	if !ok {
		return r
	}
	r.Data["timezone_offset"] = TzOffsetToMinutes(v)
	return r
}

// TzOffsetToMinutes converts a "±HH:MM" offset string to minutes.
func TzOffsetToMinutes(v any) int64 {
	switch offset := v.(type) {
	case int64:
		return offset
	case int:
		return int64(offset)
	case float64:
		return int64(offset)
	case string:
		if len(offset) == 0 || (offset[0] != '+' && offset[0] != '-') {
			return 0
		}
		hh, mm, found := strings.Cut(offset[1:], ":")
		if !found {
			return 0
		}
		hours, err := strconv.ParseInt(hh, 10, 64)
		if err != nil {
			return 0
		}
		minutes, err := strconv.ParseInt(mm, 10, 64)
		if err != nil {
			return 0
		}
		total := hours*60 + minutes
		if offset[0] == '-' {
			return -total
		}
		return total
	default:
		return 0
	}
}

// coerceTypes applies the schema's per-column type category to every
// field present in the record. Values that cannot be represented in
// the declared category become nil rather than erroring.
func coerceTypes(r Record, table *schema.Table) Record {
	for name, v := range r.Data {
		typ, ok := table.ColumnType(name)
		if !ok {
			continue
		}
		r.Data[name] = coerceValue(v, typ)
	}
	return r
}

func coerceValue(v any, typ schema.Type) any {
	if v == nil {
		return nil
	}
	switch typ {
	case schema.TypeDatetime:
		return coerceDatetime(v)
	case schema.TypeInteger:
		return coerceInteger(v)
	case schema.TypeFloat:
		return coerceFloat(v)
	case schema.TypeBoolean:
		return coerceBoolean(v)
	case schema.TypeString:
		return coerceString(v)
	}
	return v
}

// datetimeLayouts are tried in order when parsing timestamp strings.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceDatetime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range datetimeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return nil
}

func coerceInteger(v any) any {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int64(f)
		}
	}
	return nil
}

func coerceFloat(v any) any {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return nil
}

func coerceBoolean(v any) any {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0
	case int64:
		return b != 0
	case int:
		return b != 0
	default:
		return nil
	}
}

func coerceString(v any) any {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// projectColumns shapes the record onto exactly the table's column
// set. Extra fields are dropped; schema columns missing from the raw
// record are present with the absent marker.
func projectColumns(r Record, table *schema.Table) Record {
	data := make(map[string]any, len(table.Columns))
	for _, c := range table.Columns {
		data[c.Name] = r.Data[c.Name] // nil when absent
	}
	return Record{Data: data}
}
