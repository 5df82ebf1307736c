package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/diagnostics"
)

func TestSameSessionTasksRunSerially(t *testing.T) {
	s := New(diagnostics.NewBus())
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	var running, overlapped int32

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Submit(context.Background(), "chat-1", func(ctx context.Context) error {
				if atomic.AddInt32(&running, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("expected 5 tasks to complete, got %d", len(order))
	}
	if atomic.LoadInt32(&overlapped) != 0 {
		t.Fatalf("expected same-session tasks never to run at the same time")
	}
}

func TestDifferentSessionsRunConcurrently(t *testing.T) {
	s := New(diagnostics.NewBus())
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		key := []string{"a", "b", "c", "d"}[i]
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			s.Submit(context.Background(), key, func(ctx context.Context) error {
				cur := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}(key)
	}
	wg.Wait()

	if atomic.LoadInt32(&maxActive) < 2 {
		t.Fatalf("expected tasks across different sessions to overlap, maxActive=%d", maxActive)
	}
}

func TestQueueFullRejectsExcessTasks(t *testing.T) {
	s := New(diagnostics.NewBus(), WithMaxDepth(1))
	release := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Submit(context.Background(), "chat-1", func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Submit(context.Background(), "chat-1", func(ctx context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	err := s.Submit(context.Background(), "chat-1", func(ctx context.Context) error { return nil })
	if err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestPanicInTaskSurfacesAsError(t *testing.T) {
	s := New(diagnostics.NewBus())
	err := s.Submit(context.Background(), "chat-1", func(ctx context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected panic to surface as an error")
	}
}

func TestCancelStopsRunningTask(t *testing.T) {
	s := New(diagnostics.NewBus())
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var resultErr error
	go func() {
		defer wg.Done()
		resultErr = s.Submit(context.Background(), "chat-1", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started
	time.Sleep(5 * time.Millisecond)
	if !s.Cancel("chat-1") {
		t.Fatalf("expected cancel to find a running task")
	}
	wg.Wait()
	if resultErr == nil {
		t.Fatalf("expected cancelled task to return an error")
	}
}
