package schema_test

import (
	"testing"

	"whoopsync/internal/schema"
)

func TestTableForEveryRecordType(t *testing.T) {
	// Every record type must resolve to a table whose primary key is
	// one of its own columns.
	for _, rt := range schema.RecordTypes {
		table := schema.TableFor(rt)
		if table.Name == "" {
			t.Fatalf("%s: empty table name", rt)
		}
		if len(table.PrimaryKey) == 0 {
			t.Fatalf("%s: no primary key", rt)
		}
		for _, pk := range table.PrimaryKey {
			if _, ok := table.ColumnType(pk); !ok {
				t.Errorf("%s: primary key %q not in column set", rt, pk)
			}
			if !table.IsPrimaryKey(pk) {
				t.Errorf("%s: IsPrimaryKey(%q) = false", rt, pk)
			}
		}
	}
}

func TestTableForUnknownTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown record type")
		}
	}()
	schema.TableFor(schema.RecordType("heartbeat"))
}

func TestColumnNamesMatchColumnOrder(t *testing.T) {
	table := schema.TableFor(schema.RecordCycle)
	names := table.ColumnNames()
	if len(names) != len(table.Columns) {
		t.Fatalf("got %d names for %d columns", len(names), len(table.Columns))
	}
	for i, col := range table.Columns {
		if names[i] != col.Name {
			t.Errorf("column %d: got %q, want %q", i, names[i], col.Name)
		}
	}
}

func TestRecordTypesDependencyOrder(t *testing.T) {
	// Cycles are written first so sleep/recovery/workout rows can
	// reference them within the same run.
	want := []schema.RecordType{
		schema.RecordCycle,
		schema.RecordSleep,
		schema.RecordRecovery,
		schema.RecordWorkout,
	}
	if len(schema.RecordTypes) != len(want) {
		t.Fatalf("got %d record types, want %d", len(schema.RecordTypes), len(want))
	}
	for i, rt := range want {
		if schema.RecordTypes[i] != rt {
			t.Errorf("position %d: got %s, want %s", i, schema.RecordTypes[i], rt)
		}
	}
}

func TestPrimaryKeys(t *testing.T) {
	cases := map[schema.RecordType]string{
		schema.RecordCycle:    "cycle_id",
		schema.RecordSleep:    "sleep_id",
		schema.RecordRecovery: "sleep_id",
		schema.RecordWorkout:  "workout_id",
	}
	for rt, want := range cases {
		got := schema.PrimaryKeyFor(rt)
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s: primary key = %v, want [%s]", rt, got, want)
		}
	}
}
