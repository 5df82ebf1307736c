package diagnostics

import (
	"testing"
	"time"
)

func TestEmitStampsMonotonicSeq(t *testing.T) {
	b := NewBus()
	var last int64
	for i := 0; i < 50; i++ {
		evt := b.Emit(EventInput{Type: EventToolCall})
		if evt.Seq <= last {
			t.Fatalf("seq did not increase: prev=%d got=%d", last, evt.Seq)
		}
		last = evt.Seq
	}
}

func TestEmitDisabledStillStampsButDoesNotStore(t *testing.T) {
	b := NewBus()
	b.SetEnabled(false)
	evt := b.Emit(EventInput{Type: EventError, IsError: true})
	if evt.Seq == 0 {
		t.Fatalf("expected stamped event even when disabled")
	}
	events, total, _ := b.Query(Filter{})
	if total != 0 || len(events) != 0 {
		t.Fatalf("expected no stored events while disabled, got %d", total)
	}
}

func TestPruneByMaxEvents(t *testing.T) {
	b := NewBus(WithMaxEvents(10))
	for i := 0; i < 25; i++ {
		b.Emit(EventInput{Type: EventToolCall})
	}
	events, total, _ := b.Query(Filter{})
	if total != 10 || len(events) != 10 {
		t.Fatalf("expected exactly maxEvents retained, got %d", total)
	}
	if events[len(events)-1].Seq != 25 {
		t.Fatalf("expected most recent events retained, last seq=%d", events[len(events)-1].Seq)
	}
}

func TestPruneByRetention(t *testing.T) {
	clock := time.Unix(1000, 0)
	b := NewBus(WithRetention(time.Minute), WithClock(func() time.Time { return clock }))
	b.Emit(EventInput{Type: EventToolCall})
	clock = clock.Add(2 * time.Minute)
	b.Emit(EventInput{Type: EventToolCall})

	_, total, _ := b.Query(Filter{})
	if total != 1 {
		t.Fatalf("expected retention to prune stale event, got total=%d", total)
	}
}

func TestSubscriberPanicDoesNotBlockProducer(t *testing.T) {
	b := NewBus()
	b.Subscribe(func(Event) { panic("boom") })
	received := false
	b.Subscribe(func(Event) { received = true })

	b.Emit(EventInput{Type: EventToolCall})
	if !received {
		t.Fatalf("expected second subscriber to still be notified")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe(func(Event) { calls++ })
	b.Emit(EventInput{Type: EventToolCall})
	unsub()
	b.Emit(EventInput{Type: EventToolCall})
	if calls != 1 {
		t.Fatalf("expected exactly one notification before unsubscribe, got %d", calls)
	}
}

func TestQueryFilters(t *testing.T) {
	b := NewBus()
	b.Emit(EventInput{Type: EventToolCall, SessionKey: "a:1"})
	b.Emit(EventInput{Type: EventError, SessionKey: "a:1", IsError: true})
	b.Emit(EventInput{Type: EventToolCall, SessionKey: "b:1"})

	events, total, _ := b.Query(Filter{SessionKey: "a:1"})
	if total != 2 || len(events) != 2 {
		t.Fatalf("expected 2 events for session a:1, got %d", total)
	}

	events, total, _ = b.Query(Filter{ErrorsOnly: true})
	if total != 1 || len(events) != 1 || !events[0].IsError {
		t.Fatalf("expected 1 error event, got %d", total)
	}
}

func TestQueryLimitReportsHasMore(t *testing.T) {
	b := NewBus()
	for i := 0; i < 5; i++ {
		b.Emit(EventInput{Type: EventToolCall})
	}
	events, total, hasMore := b.Query(Filter{Limit: 2})
	if total != 5 || len(events) != 2 || !hasMore {
		t.Fatalf("expected total=5 len=2 hasMore=true, got total=%d len=%d hasMore=%v", total, len(events), hasMore)
	}
}

func TestStatsAggregatesPerType(t *testing.T) {
	b := NewBus()
	b.Emit(EventInput{Type: EventToolCall, DurationMs: 10})
	b.Emit(EventInput{Type: EventToolCall, DurationMs: 30})
	b.Emit(EventInput{Type: EventError, IsError: true})

	stats := b.Stats()
	var toolStats *TypeStats
	for i := range stats {
		if stats[i].Type == EventToolCall {
			toolStats = &stats[i]
		}
	}
	if toolStats == nil {
		t.Fatalf("expected tool.call stats entry")
	}
	if toolStats.Count != 2 || toolStats.AvgDurationMs != 20 {
		t.Fatalf("expected count=2 avg=20, got count=%d avg=%v", toolStats.Count, toolStats.AvgDurationMs)
	}
}

func TestRecentErrorsOrderedOldestFirstWithinWindow(t *testing.T) {
	b := NewBus()
	b.Emit(EventInput{Type: EventToolCall})
	b.Emit(EventInput{Type: EventError, IsError: true, Message: "first"})
	b.Emit(EventInput{Type: EventError, IsError: true, Message: "second"})

	errs := b.RecentErrors(10)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[0].Message != "first" || errs[1].Message != "second" {
		t.Fatalf("expected chronological order, got %v", errs)
	}
}

func TestClearRemovesEventsButKeepsSeq(t *testing.T) {
	b := NewBus()
	b.Emit(EventInput{Type: EventToolCall})
	b.Clear()
	_, total, _ := b.Query(Filter{})
	if total != 0 {
		t.Fatalf("expected 0 events after clear, got %d", total)
	}
	evt := b.Emit(EventInput{Type: EventToolCall})
	if evt.Seq != 2 {
		t.Fatalf("expected seq to keep incrementing after clear, got %d", evt.Seq)
	}
}
