package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ApprovalWatcher watches a workspace's .approval directory and invokes
// onChange (debounced) whenever any file in it is created, written,
// removed, or renamed, so a running process can pick up allowlist/policy
// edits made on disk without a restart.
type ApprovalWatcher struct {
	dir      string
	onChange func()
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewApprovalWatcher builds a watcher for dir. onChange is called from a
// background goroutine; it must not block.
func NewApprovalWatcher(dir string, onChange func(), logger *slog.Logger) *ApprovalWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalWatcher{
		dir:      dir,
		onChange: onChange,
		debounce: 250 * time.Millisecond,
		logger:   logger.With("component", "config.watch"),
	}
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *ApprovalWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx, watcher)
	return nil
}

// Stop halts the watch loop and releases the underlying fsnotify handle.
func (w *ApprovalWatcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}
	w.wg.Wait()
}

func (w *ApprovalWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.onChange)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("approval watch error", "error", err)
		}
	}
}
