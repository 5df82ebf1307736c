package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestApprovalWatcherFiresOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w := NewApprovalWatcher(dir, func() { atomic.AddInt32(&calls, 1) }, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "policy.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for watcher callback")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestApprovalWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := NewApprovalWatcher(dir, func() {}, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Stop()
	w.Stop()
}
