package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"whoopsync/internal/auth"
	"whoopsync/internal/config"
	"whoopsync/internal/etl"
	"whoopsync/internal/schema"
	"whoopsync/internal/service"
	"whoopsync/internal/store"
)

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	f.calls++
	return "token", f.err
}

type emptyFetcher struct {
	windows []etl.Window
}

func (f *emptyFetcher) FetchAll(_ context.Context, _ schema.RecordType, w etl.Window) (etl.Batch, error) {
	f.windows = append(f.windows, w)
	return nil, nil
}

func testService(t *testing.T, tokens *fakeTokens, fetch etl.Fetcher) (*service.Service, *store.Warehouse) {
	t.Helper()
	warehouse, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { warehouse.Close() })
	if err := warehouse.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.Pipeline.LookbackDays = 7
	cfg.Pipeline.EpochFloor = "2024-01-01"

	engine := &etl.Engine{Fetch: fetch, Write: warehouse}
	return service.New(cfg, "", warehouse, tokens, engine), warehouse
}

func TestRunOncePersistsRunLogs(t *testing.T) {
	tokens := &fakeTokens{}
	svc, warehouse := testService(t, tokens, &emptyFetcher{})

	results, err := svc.RunOnce(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != len(schema.RecordTypes) {
		t.Fatalf("got %d results, want %d", len(results), len(schema.RecordTypes))
	}
	for _, res := range results {
		if res.Failed() {
			t.Errorf("%s: %s %v", res.RecordType, res.Status, res.Err)
		}
	}

	logs, err := warehouse.ListRunLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("list run logs: %v", err)
	}
	if len(logs) != len(schema.RecordTypes) {
		t.Fatalf("got %d run logs, want %d", len(logs), len(schema.RecordTypes))
	}
	// Every row of the run shares one run identifier.
	for _, rl := range logs[1:] {
		if rl.RunID != logs[0].RunID {
			t.Errorf("run id %q differs from %q", rl.RunID, logs[0].RunID)
		}
	}
}

func TestRunOnceHaltsOnTokenFailure(t *testing.T) {
	tokens := &fakeTokens{err: &auth.AuthError{Op: "no stored token; authorize first"}}
	fetch := &emptyFetcher{}
	svc, warehouse := testService(t, tokens, fetch)

	_, err := svc.RunOnce(context.Background(), nil)
	var aerr *auth.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("got %v, want *AuthError", err)
	}
	if len(fetch.windows) != 0 {
		t.Errorf("fetcher called %d times after auth failure", len(fetch.windows))
	}
	logs, err := warehouse.ListRunLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("list run logs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("got %d run logs for an aborted run, want 0", len(logs))
	}
}

func TestRunOnceWindowOverride(t *testing.T) {
	fetch := &emptyFetcher{}
	svc, _ := testService(t, &fakeTokens{}, fetch)

	want := etl.Window{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
	}
	if _, err := svc.RunOnce(context.Background(), &want); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(fetch.windows) == 0 {
		t.Fatal("fetcher never called")
	}
	for _, got := range fetch.windows {
		if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
			t.Errorf("window = %v..%v, want %v..%v", got.Start, got.End, want.Start, want.End)
		}
	}
}

func TestRunOnceDerivedWindowFromEpochFloor(t *testing.T) {
	// Empty warehouse: the window starts at the configured floor and
	// ends a day behind now.
	fetch := &emptyFetcher{}
	svc, _ := testService(t, &fakeTokens{}, fetch)

	if _, err := svc.RunOnce(context.Background(), nil); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := fetch.windows[0]
	floor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Start.Equal(floor) {
		t.Errorf("start = %v, want %v", got.Start, floor)
	}
	wantEnd := time.Now().UTC().Add(-24 * time.Hour)
	if diff := got.End.Sub(wantEnd); diff < -time.Minute || diff > time.Minute {
		t.Errorf("end = %v, want about %v", got.End, wantEnd)
	}
}

func TestRunOnceDerivedWindowFromLookback(t *testing.T) {
	fetch := &emptyFetcher{}
	svc, warehouse := testService(t, &fakeTokens{}, fetch)

	// Seed the newest cycle so the derived start is its created_at
	// minus the lookback.
	created := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	seed := etl.Record{Data: map[string]any{
		"cycle_id": int64(1), "user_id": int64(1),
		"created_at": created, "updated_at": created,
		"start": created, "end": created,
		"timezone_offset": int64(0), "state": "SCORED",
		"strain": nil, "kilojoule": nil,
		"average_heart_rate": nil, "max_heart_rate": nil,
		"sleep_id": nil, "recovery_id": nil,
	}}
	if _, err := warehouse.Upsert(context.Background(), etl.Batch{seed}, schema.RecordCycle); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.RunOnce(context.Background(), nil); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	want := created.Add(-7 * 24 * time.Hour)
	if got := fetch.windows[0].Start; !got.Equal(want) {
		t.Errorf("start = %v, want %v", got, want)
	}
}

func TestRunOnceSequentialRunsAllowed(t *testing.T) {
	svc, _ := testService(t, &fakeTokens{}, &emptyFetcher{})
	for i := 0; i < 2; i++ {
		if _, err := svc.RunOnce(context.Background(), nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}
