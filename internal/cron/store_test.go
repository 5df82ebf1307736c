package cron

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRecordAndListRunsOrdersOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := Run{JobID: "job-1", RanAt: base.Add(time.Duration(i) * time.Minute), Succeeded: i != 1}
		if i == 1 {
			run.Error = "boom"
		}
		if err := store.RecordRun(run); err != nil {
			t.Fatalf("record run %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns("job-1", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if !runs[0].RanAt.Equal(base) {
		t.Fatalf("expected oldest run first, got %v", runs[0].RanAt)
	}
	if runs[1].Succeeded || runs[1].Error != "boom" {
		t.Fatalf("unexpected middle run: %+v", runs[1])
	}
}

func TestStoreListRunsRespectsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = store.RecordRun(Run{JobID: "job-1", RanAt: base.Add(time.Duration(i) * time.Minute), Succeeded: true})
	}

	runs, err := store.ListRuns("job-1", 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[1].RanAt.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("expected most recent run last, got %v", runs[1].RanAt)
	}
}

func TestStoreListRunsForUnknownJobReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns("missing", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}
