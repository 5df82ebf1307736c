// Package diagnostics provides a bounded, indexable in-memory event bus used
// for observability across the runtime. Every other component is handed a
// *Bus explicitly at construction time; there is no package-level singleton.
package diagnostics

import (
	"sort"
	"sync"
	"time"
)

// EventType identifies the kind of diagnostic event.
type EventType string

const (
	EventModelUsage       EventType = "model.usage"
	EventToolCall         EventType = "tool.call"
	EventError            EventType = "error"
	EventSessionState     EventType = "session.state"
	EventMessageProcessed EventType = "message.processed"
	EventMessageQueued    EventType = "message.queued"
	EventSessionStuck     EventType = "session.stuck"
	EventLaneEnqueue      EventType = "queue.lane.enqueue"
	EventLaneDequeue      EventType = "queue.lane.dequeue"
	EventRunAttempt       EventType = "run.attempt"
	EventHeartbeat        EventType = "diagnostic.heartbeat"
	EventWebhookReceived  EventType = "webhook.received"
	EventWebhookProcessed EventType = "webhook.processed"
	EventWebhookError     EventType = "webhook.error"
)

// Event is a single stamped diagnostic record. Fields is a free-form payload
// carrying the event-type-specific data (mirroring the per-type structs the
// teacher uses, collapsed into one map so the bus can stay type-agnostic).
type Event struct {
	Seq        int64          `json:"seq"`
	Ts         int64          `json:"ts"`
	Type       EventType      `json:"type"`
	SessionKey string         `json:"session_key,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Message    string         `json:"message,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// EventInput is what callers pass to Emit; Seq and Ts are stamped by the bus.
type EventInput struct {
	Type       EventType
	SessionKey string
	Channel    string
	DurationMs int64
	IsError    bool
	Message    string
	Fields     map[string]any
}

// Subscriber receives live events as they are emitted. A panic inside a
// subscriber is recovered so one bad listener can never block the producer.
type Subscriber func(Event)

// Filter narrows a Query call.
type Filter struct {
	Types      map[EventType]bool
	SessionKey string
	Channel    string
	Since      time.Time
	Until      time.Time
	ErrorsOnly bool
	Limit      int
}

// TypeStats summarizes one event type for Stats().
type TypeStats struct {
	Type          EventType
	Count         int
	FirstTs       int64
	LastTs        int64
	AvgDurationMs float64
	ErrorCount    int
}

// Bus is a bounded ring of recent diagnostic events with live subscribers.
type Bus struct {
	mu          sync.Mutex
	seq         int64
	enabled     bool
	maxEvents   int
	retention   time.Duration
	events      []Event
	subscribers []Subscriber
	now         func() time.Time
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithMaxEvents overrides the ring capacity (default 10000).
func WithMaxEvents(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxEvents = n
		}
	}
}

// WithRetention overrides the retention window (default 24h).
func WithRetention(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.retention = d
		}
	}
}

// WithClock overrides the time source; intended for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBus creates an enabled bus with the given options.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		enabled:   true,
		maxEvents: 10000,
		retention: 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetEnabled toggles event storage and notification. Emit still returns a
// stamped event when disabled; callers can always inspect what would have
// been recorded.
func (b *Bus) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Emit stamps, stores, and fans out an event. It always returns the stamped
// event even when the bus is disabled.
func (b *Bus) Emit(in EventInput) Event {
	b.mu.Lock()
	b.seq++
	evt := Event{
		Seq:        b.seq,
		Ts:         b.now().UnixMilli(),
		Type:       in.Type,
		SessionKey: in.SessionKey,
		Channel:    in.Channel,
		DurationMs: in.DurationMs,
		IsError:    in.IsError,
		Message:    in.Message,
		Fields:     in.Fields,
	}
	if !b.enabled {
		b.mu.Unlock()
		return evt
	}
	b.events = append(b.events, evt)
	b.prune()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		notify(sub, evt)
	}
	return evt
}

func notify(sub Subscriber, evt Event) {
	defer func() { _ = recover() }()
	sub(evt)
}

// prune drops entries beyond maxEvents or older than retention. Caller must
// hold b.mu.
func (b *Bus) prune() {
	if len(b.events) > b.maxEvents {
		drop := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[drop:]...)
	}
	if b.retention <= 0 {
		return
	}
	cutoff := b.now().Add(-b.retention).UnixMilli()
	idx := 0
	for idx < len(b.events) && b.events[idx].Ts < cutoff {
		idx++
	}
	if idx > 0 {
		b.events = append([]Event(nil), b.events[idx:]...)
	}
}

// Subscribe registers a live listener and returns an unsubscribe function.
func (b *Bus) Subscribe(sub Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.subscribers)
	b.subscribers = append(b.subscribers, sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.subscribers) {
			b.subscribers = append(b.subscribers[:idx], b.subscribers[idx+1:]...)
		}
	}
}

// Query returns events matching filter, most-recent policy applied via Limit.
func (b *Bus) Query(f Filter) (events []Event, total int, hasMore bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := make([]Event, 0, len(b.events))
	for _, evt := range b.events {
		if !matches(evt, f) {
			continue
		}
		matched = append(matched, evt)
	}
	total = len(matched)
	if f.Limit > 0 && len(matched) > f.Limit {
		hasMore = true
		matched = matched[len(matched)-f.Limit:]
	}
	return matched, total, hasMore
}

func matches(evt Event, f Filter) bool {
	if len(f.Types) > 0 && !f.Types[evt.Type] {
		return false
	}
	if f.SessionKey != "" && evt.SessionKey != f.SessionKey {
		return false
	}
	if f.Channel != "" && evt.Channel != f.Channel {
		return false
	}
	if !f.Since.IsZero() && evt.Ts < f.Since.UnixMilli() {
		return false
	}
	if !f.Until.IsZero() && evt.Ts > f.Until.UnixMilli() {
		return false
	}
	if f.ErrorsOnly && !evt.IsError {
		return false
	}
	return true
}

// Stats summarizes stored events grouped by type, sorted by type name.
func (b *Bus) Stats() []TypeStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	byType := make(map[EventType]*TypeStats)
	for _, evt := range b.events {
		s, ok := byType[evt.Type]
		if !ok {
			s = &TypeStats{Type: evt.Type, FirstTs: evt.Ts}
			byType[evt.Type] = s
		}
		s.Count++
		if evt.Ts < s.FirstTs || s.FirstTs == 0 {
			s.FirstTs = evt.Ts
		}
		if evt.Ts > s.LastTs {
			s.LastTs = evt.Ts
		}
		if evt.IsError {
			s.ErrorCount++
		}
		s.AvgDurationMs += float64(evt.DurationMs)
	}
	out := make([]TypeStats, 0, len(byType))
	for _, s := range byType {
		if s.Count > 0 {
			s.AvgDurationMs /= float64(s.Count)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// RecentErrors returns up to n most recent error events, newest last.
func (b *Bus) RecentErrors(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	errs := make([]Event, 0, n)
	for i := len(b.events) - 1; i >= 0 && len(errs) < n; i-- {
		if b.events[i].IsError {
			errs = append(errs, b.events[i])
		}
	}
	for i, j := 0, len(errs)-1; i < j; i, j = i+1, j-1 {
		errs[i], errs[j] = errs[j], errs[i]
	}
	return errs
}

// Clear drops all stored events. Subscribers and seq are left intact.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
