package etl_test

import (
	"reflect"
	"testing"
	"time"

	"whoopsync/internal/etl"
	"whoopsync/internal/schema"
)

// ─────────────────────────────────────────────────────────────
// Normalization chain tests: name resolution, timezone offset
// conversion, type coercion, and column projection.
// ─────────────────────────────────────────────────────────────

func TestTzOffsetToMinutes(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{"+02:30", 150},
		{"-01:15", -75},
		{"+00:00", 0},
		{"-05:00", -300},
		{"garbage", 0},
		{"0230", 0},
		{"", 0},
		{nil, 0},
		{int64(150), 150}, // already converted
		{90, 90},
		{float64(-45), -45},
	}
	for _, c := range cases {
		if got := etl.TzOffsetToMinutes(c.in); got != c.want {
			t.Errorf("TzOffsetToMinutes(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNormalizeCycleRecord(t *testing.T) {
	raw := etl.Batch{{Data: map[string]any{
		"id":              float64(93845),
		"user_id":         float64(10129),
		"created_at":      "2024-04-01T12:00:00.000Z",
		"updated_at":      "2024-04-01T13:00:00.000Z",
		"start":           "2024-03-31T22:00:00.000Z",
		"end":             "2024-04-01T08:00:00.000Z",
		"timezone_offset": "-05:00",
		"score_state":     "SCORED",
		"score.strain":    12.5,
		"score.kilojoule": 8000.1,
	}}}

	out := etl.Normalize(raw, schema.RecordCycle)
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}
	data := out[0].Data

	// id renamed to the type's primary key column.
	if got := data["cycle_id"]; got != int64(93845) {
		t.Errorf("cycle_id = %v (%T), want int64 93845", got, got)
	}
	// score_state renamed to state.
	if got := data["state"]; got != "SCORED" {
		t.Errorf("state = %v, want SCORED", got)
	}
	// Nested score.* keeps only the last path segment.
	if got := data["strain"]; got != 12.5 {
		t.Errorf("strain = %v, want 12.5", got)
	}
	// Offset string converted to signed minutes.
	if got := data["timezone_offset"]; got != int64(-300) {
		t.Errorf("timezone_offset = %v (%T), want int64 -300", got, got)
	}
	// Datetimes parsed to UTC time.Time.
	created, ok := data["created_at"].(time.Time)
	if !ok {
		t.Fatalf("created_at is %T, want time.Time", data["created_at"])
	}
	want := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	if !created.Equal(want) {
		t.Errorf("created_at = %v, want %v", created, want)
	}
	// Columns never sent by the API are present with nil.
	if v, present := data["sleep_id"]; !present || v != nil {
		t.Errorf("sleep_id = %v, present=%v; want nil, present", v, present)
	}
}

func TestNormalizeSleepNeededPrefix(t *testing.T) {
	// sleep_needed.* keeps its prefix so the suffixes don't collide
	// with the sibling stage counters.
	raw := etl.Batch{{Data: map[string]any{
		"id":                                            "sleep-uuid-1",
		"score.sleep_needed.baseline_milli":             float64(27000000),
		"score.sleep_needed.need_from_sleep_debt_milli": float64(1200000),
		"score.stage_summary.total_in_bed_time_milli":   float64(29000000),
	}}}

	out := etl.Normalize(raw, schema.RecordSleep)
	data := out[0].Data

	if got := data["sleep_needed_baseline_milli"]; got != int64(27000000) {
		t.Errorf("sleep_needed_baseline_milli = %v, want 27000000", got)
	}
	if got := data["sleep_needed_need_from_sleep_debt_milli"]; got != int64(1200000) {
		t.Errorf("sleep_needed_need_from_sleep_debt_milli = %v, want 1200000", got)
	}
	if got := data["total_in_bed_time_milli"]; got != int64(29000000) {
		t.Errorf("total_in_bed_time_milli = %v, want 29000000", got)
	}
	if got := data["sleep_id"]; got != "sleep-uuid-1" {
		t.Errorf("sleep_id = %v, want sleep-uuid-1", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := etl.Batch{{Data: map[string]any{
		"id":              float64(7),
		"timezone_offset": "+02:30",
		"created_at":      "2024-05-05T05:05:05.000Z",
		"score.strain":    3.3,
	}}}

	once := etl.Normalize(raw, schema.RecordCycle)
	twice := etl.Normalize(once, schema.RecordCycle)

	if !reflect.DeepEqual(once[0].Data, twice[0].Data) {
		t.Errorf("second pass changed the record:\n once: %v\ntwice: %v",
			once[0].Data, twice[0].Data)
	}
	if got := twice[0].Data["timezone_offset"]; got != int64(150) {
		t.Errorf("timezone_offset after two passes = %v, want 150", got)
	}
}

func TestNormalizeDropsUnknownFields(t *testing.T) {
	raw := etl.Batch{{Data: map[string]any{
		"id":             float64(1),
		"mystery_metric": 42.0,
	}}}
	out := etl.Normalize(raw, schema.RecordCycle)
	if _, present := out[0].Data["mystery_metric"]; present {
		t.Error("unknown raw field survived projection")
	}
	table := schema.TableFor(schema.RecordCycle)
	if len(out[0].Data) != len(table.Columns) {
		t.Errorf("projected record has %d fields, want %d", len(out[0].Data), len(table.Columns))
	}
}

func TestNormalizeUncoercibleValueBecomesNil(t *testing.T) {
	raw := etl.Batch{{Data: map[string]any{
		"id":         float64(1),
		"created_at": "not a timestamp",
	}}}
	out := etl.Normalize(raw, schema.RecordCycle)
	if got := out[0].Data["created_at"]; got != nil {
		t.Errorf("created_at = %v, want nil", got)
	}
}
