package ingress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/channel"
	"github.com/nexuscore/agentrt/internal/cron"
	"github.com/nexuscore/agentrt/internal/dedup"
	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/scheduler"
	"github.com/nexuscore/agentrt/internal/turn"
	"github.com/nexuscore/agentrt/pkg/models"
)

type fakeDriver struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeDriver) Run(ctx context.Context, model, system string, history []models.HistoryMessage, userText string) (*turn.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &turn.Result{
		Reply:   f.reply,
		History: append(append([]models.HistoryMessage{}, history...), models.HistoryMessage{Role: models.RoleUser, Content: userText}),
	}, nil
}

func (f *fakeDriver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOutbound struct {
	mu  sync.Mutex
	typ string
	got []string
}

func (o *fakeOutbound) Type() string { return o.typ }

func (o *fakeOutbound) Send(ctx context.Context, chatID, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, text)
	return nil
}

func (o *fakeOutbound) sent() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string{}, o.got...)
}

type memHistory struct {
	mu   sync.Mutex
	data map[string][]models.HistoryMessage
}

func newMemHistory() *memHistory { return &memHistory{data: make(map[string][]models.HistoryMessage)} }

func (h *memHistory) Load(sessionKey string) []models.HistoryMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistoryMessage{}, h.data[sessionKey]...)
}

func (h *memHistory) Append(sessionKey string, messages ...models.HistoryMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[sessionKey] = append(h.data[sessionKey], messages...)
}

func newTestRouter(driver TurnRunner, outbound *fakeOutbound, cfg Config) (*Router, *channel.Registry) {
	adapters := channel.NewRegistry()
	if outbound != nil {
		adapters.Register(outbound)
	}
	idx := dedup.New(dedup.Options{})
	sched := scheduler.New(diagnostics.NewBus())
	return New(adapters, idx, sched, driver, newMemHistory(), diagnostics.NewBus(), cfg), adapters
}

func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestOnMessageRunsTurnAndWritesReply(t *testing.T) {
	driver := &fakeDriver{reply: "hi there"}
	out := &fakeOutbound{typ: "console"}
	router, _ := newTestRouter(driver, out, Config{})

	router.onMessage(context.Background(), models.MessageContext{
		Channel: "console", ChatType: models.ChatDirect, ChatID: "c1", Text: "hello", MessageID: "m1",
	})

	waitFor(t, time.Second, func() bool { return len(out.sent()) == 1 })
	if got := out.sent()[0]; got != "hi there" {
		t.Fatalf("expected reply written back, got %q", got)
	}
}

func TestOnMessageDropsDuplicateMessageID(t *testing.T) {
	driver := &fakeDriver{reply: "ok"}
	out := &fakeOutbound{typ: "console"}
	router, _ := newTestRouter(driver, out, Config{})

	msg := models.MessageContext{Channel: "console", ChatType: models.ChatDirect, ChatID: "c1", Text: "hello", MessageID: "dup-1"}
	router.onMessage(context.Background(), msg)
	waitFor(t, time.Second, func() bool { return driver.callCount() == 1 })

	router.onMessage(context.Background(), msg)
	time.Sleep(50 * time.Millisecond)

	if driver.callCount() != 1 {
		t.Fatalf("expected duplicate message to be dropped, driver called %d times", driver.callCount())
	}
}

func TestOnMessageSkipsEmptyAndHeartbeatReplies(t *testing.T) {
	out := &fakeOutbound{typ: "console"}

	for i, reply := range []string{"", HeartbeatOK} {
		driver := &fakeDriver{reply: reply}
		router, _ := newTestRouter(driver, out, Config{})
		router.onMessage(context.Background(), models.MessageContext{
			Channel: "console", ChatType: models.ChatDirect, ChatID: "c1", Text: "hello", MessageID: "m-empty",
			TimestampMs: int64(i),
		})
		waitFor(t, time.Second, func() bool { return driver.callCount() == 1 })
	}

	time.Sleep(50 * time.Millisecond)
	if len(out.sent()) != 0 {
		t.Fatalf("expected no replies written for empty/heartbeat text, got %v", out.sent())
	}
}

func TestGroupPolicyMentionOnlyFiltersUnmentionedMessages(t *testing.T) {
	driver := &fakeDriver{reply: "ok"}
	out := &fakeOutbound{typ: "console"}
	router, _ := newTestRouter(driver, out, Config{GroupPolicy: GroupPolicyMentionOnly})

	router.onMessage(context.Background(), models.MessageContext{
		Channel: "console", ChatType: models.ChatGroup, ChatID: "g1", Text: "hey all", MessageID: "g-1", Mentioned: false,
	})
	time.Sleep(50 * time.Millisecond)
	if driver.callCount() != 0 {
		t.Fatalf("expected unmentioned group message filtered, driver called %d times", driver.callCount())
	}

	router.onMessage(context.Background(), models.MessageContext{
		Channel: "console", ChatType: models.ChatGroup, ChatID: "g1", Text: "hey @bot", MessageID: "g-2", Mentioned: true,
	})
	waitFor(t, time.Second, func() bool { return driver.callCount() == 1 })
}

func TestGroupPolicyNoneDropsAllGroupMessages(t *testing.T) {
	driver := &fakeDriver{reply: "ok"}
	out := &fakeOutbound{typ: "console"}
	router, _ := newTestRouter(driver, out, Config{GroupPolicy: GroupPolicyNone})

	router.onMessage(context.Background(), models.MessageContext{
		Channel: "console", ChatType: models.ChatGroup, ChatID: "g1", Text: "hey @bot", MessageID: "g-3", Mentioned: true,
	})
	time.Sleep(50 * time.Millisecond)
	if driver.callCount() != 0 {
		t.Fatalf("expected group message dropped under none policy, driver called %d times", driver.callCount())
	}
}

func TestOnMessageSurvivesTurnError(t *testing.T) {
	driver := &fakeDriver{err: errors.New("model unavailable")}
	out := &fakeOutbound{typ: "console"}
	router, _ := newTestRouter(driver, out, Config{})

	router.onMessage(context.Background(), models.MessageContext{
		Channel: "console", ChatType: models.ChatDirect, ChatID: "c1", Text: "hello", MessageID: "m-err",
	})
	waitFor(t, time.Second, func() bool { return driver.callCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	if len(out.sent()) != 0 {
		t.Fatalf("expected no reply written when the turn errors, got %v", out.sent())
	}
}

func TestRunTurnEmitsProcessedOutcomeForFailureAndCancellation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantReason string
	}{
		{name: "generic failure", err: errors.New("model unavailable"), wantReason: "failed"},
		{name: "cancelled", err: context.Canceled, wantReason: "cancelled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver := &fakeDriver{err: tc.err}
			adapters := channel.NewRegistry()
			idx := dedup.New(dedup.Options{})
			sched := scheduler.New(diagnostics.NewBus())
			bus := diagnostics.NewBus()
			router := New(adapters, idx, sched, driver, newMemHistory(), bus, Config{})

			msg := models.MessageContext{Channel: "console", ChatType: models.ChatDirect, ChatID: "c1", Text: "hello", MessageID: "m-" + tc.name}
			if err := router.runTurn(context.Background(), msg); err == nil {
				t.Fatalf("expected runTurn to surface the driver error")
			}

			events, _, _ := bus.Query(diagnostics.Filter{Types: map[diagnostics.EventType]bool{diagnostics.EventMessageProcessed: true}})
			if len(events) != 1 {
				t.Fatalf("expected exactly one message.processed event, got %d", len(events))
			}
			if events[0].Fields["outcome"] != "error" {
				t.Fatalf("expected outcome=error, got %v", events[0].Fields["outcome"])
			}
			if events[0].Fields["reason"] != tc.wantReason {
				t.Fatalf("expected reason=%s, got %v", tc.wantReason, events[0].Fields["reason"])
			}
		})
	}
}

func TestCronSinkFeedsRouterOnMessagePath(t *testing.T) {
	driver := &fakeDriver{reply: "reminder fired"}
	out := &fakeOutbound{typ: "console"}
	router, _ := newTestRouter(driver, out, Config{})

	sink := router.CronSink()
	if err := sink(context.Background(), cron.Payload{Channel: "console", ChatID: "c1", Text: "wake up"}); err != nil {
		t.Fatalf("unexpected error from cron sink: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(out.sent()) == 1 })
	if out.sent()[0] != "reminder fired" {
		t.Fatalf("expected cron-triggered reply written back, got %v", out.sent())
	}
}
