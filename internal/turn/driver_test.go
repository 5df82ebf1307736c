package turn

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/llmclient"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// scriptedRound is one canned model response.
type scriptedRound struct {
	text  string
	calls []models.ToolCall
}

// scriptedClient implements llmclient.Client and plays back rounds in order.
// It can also simulate a leading run of transient failures before falling
// back to the script, to exercise the driver's retry path.
type scriptedClient struct {
	t    *testing.T
	mu   atomicIndex
	rounds []scriptedRound

	attempts     int32
	failFirstN   int
	transientErr error

	onToolResultSeen func(content string)
}

type atomicIndex struct{ n int32 }

func newScriptedClient(t *testing.T, rounds []scriptedRound) *scriptedClient {
	return &scriptedClient{t: t, rounds: rounds}
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Complete(ctx context.Context, req *llmclient.CompletionRequest) (<-chan *llmclient.CompletionChunk, error) {
	attempt := atomic.AddInt32(&c.attempts, 1)

	if c.onToolResultSeen != nil {
		for _, m := range req.Messages {
			for _, tr := range m.ToolResults {
				c.onToolResultSeen(tr.Content)
			}
		}
	}

	out := make(chan *llmclient.CompletionChunk, 8)

	if int(attempt) <= c.failFirstN {
		go func() {
			defer close(out)
			out <- &llmclient.CompletionChunk{Err: c.transientErr}
		}()
		return out, nil
	}

	idx := int(atomic.AddInt32(&c.mu.n, 1)) - 1
	if idx >= len(c.rounds) {
		c.t.Fatalf("scriptedClient: no round scripted for call index %d", idx)
	}
	round := c.rounds[idx]

	go func() {
		defer close(out)
		if round.text != "" {
			out <- &llmclient.CompletionChunk{Text: round.text}
		}
		for _, tc := range round.calls {
			call := tc
			out <- &llmclient.CompletionChunk{ToolCall: &call}
		}
		out <- &llmclient.CompletionChunk{Done: true, InputTokens: 10, OutputTokens: 5}
	}()
	return out, nil
}

func TestDriverRunReturnsFinalReplyWithoutToolCalls(t *testing.T) {
	client := newScriptedClient(t, []scriptedRound{
		{text: "hello there"},
	})
	bus := diagnostics.NewBus()
	registry := tools.NewRegistry()

	d := New(client, registry, bus, DefaultConfig())
	result, err := d.Run(context.Background(), "claude-x", "be nice", nil, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "hello there" {
		t.Fatalf("expected final reply, got %q", result.Reply)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestDriverRunWritesRequestLog(t *testing.T) {
	client := newScriptedClient(t, []scriptedRound{
		{text: "hello there"},
	})
	bus := diagnostics.NewBus()
	registry := tools.NewRegistry()

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.RequestLogDir = dir
	d := New(client, registry, bus, cfg)

	if _, err := d.Run(context.Background(), "claude-x", "be nice", nil, "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one request log file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "request-") || filepath.Ext(entries[0].Name()) != ".json" {
		t.Fatalf("unexpected log file name %q", entries[0].Name())
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var decoded struct {
		Model    string `json:"model"`
		Messages []any  `json:"messages"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode log file: %v", err)
	}
	if decoded.Model != "claude-x" {
		t.Fatalf("expected model id in log payload, got %q", decoded.Model)
	}
	if len(decoded.Messages) != 1 {
		t.Fatalf("expected the user message in log payload, got %d messages", len(decoded.Messages))
	}
}

func TestDriverRunDispatchesToolCallsThenReturnsFinalAnswer(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&echoTool{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	client := newScriptedClient(t, []scriptedRound{
		{calls: []models.ToolCall{{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)}}},
		{text: "done"},
	})
	bus := diagnostics.NewBus()

	d := New(client, registry, bus, DefaultConfig())
	result, err := d.Run(context.Background(), "claude-x", "sys", nil, "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "done" {
		t.Fatalf("expected final reply 'done', got %q", result.Reply)
	}
	if result.ToolCallCount != 1 {
		t.Fatalf("expected 1 tool call, got %d", result.ToolCallCount)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.Iterations)
	}
}

func TestDriverTruncatesOversizedToolResults(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&bigTool{size: 200}); err != nil {
		t.Fatalf("register: %v", err)
	}

	client := newScriptedClient(t, []scriptedRound{
		{calls: []models.ToolCall{{ID: "call-1", Name: "big", Input: json.RawMessage(`{}`)}}},
		{text: "ok"},
	})

	cfg := DefaultConfig()
	cfg.ToolResultMaxBytes = 50
	d := New(client, registry, diagnostics.NewBus(), cfg)

	capturedResult := make(chan string, 1)
	client.onToolResultSeen = func(content string) {
		select {
		case capturedResult <- content:
		default:
		}
	}

	_, err := d.Run(context.Background(), "claude-x", "sys", nil, "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case content := <-capturedResult:
		if len(content) <= 50 {
			t.Fatalf("expected truncation marker appended beyond 50 bytes, got len %d", len(content))
		}
		if !strings.Contains(content, "truncated") {
			t.Fatalf("expected truncation marker in content, got %q", content)
		}
	case <-time.After(time.Second):
		t.Fatal("tool result was never observed by the second model round")
	}
}

func TestDriverRetriesOnceOnTransientFailure(t *testing.T) {
	client := newScriptedClient(t, []scriptedRound{
		{text: "recovered"},
	})
	client.failFirstN = 1
	client.transientErr = errors.New("connection reset by peer")

	d := New(client, tools.NewRegistry(), diagnostics.NewBus(), DefaultConfig())
	result, err := d.Run(context.Background(), "claude-x", "sys", nil, "hi")
	if err != nil {
		t.Fatalf("expected retry to recover, got error: %v", err)
	}
	if result.Reply != "recovered" {
		t.Fatalf("expected recovered reply, got %q", result.Reply)
	}
	if atomic.LoadInt32(&client.attempts) != 2 {
		t.Fatalf("expected exactly 2 attempts (1 failure + 1 retry), got %d", client.attempts)
	}
}

func TestDriverFailsFastOnNonTransientError(t *testing.T) {
	client := newScriptedClient(t, nil)
	client.failFirstN = 99
	client.transientErr = errors.New("invalid api key")

	d := New(client, tools.NewRegistry(), diagnostics.NewBus(), DefaultConfig())
	_, err := d.Run(context.Background(), "claude-x", "sys", nil, "hi")
	if err == nil {
		t.Fatal("expected error for non-transient failure")
	}
	if atomic.LoadInt32(&client.attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", client.attempts)
	}
}

func TestDriverStopsAtMaxIterations(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(&echoTool{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	rounds := make([]scriptedRound, 3)
	for i := range rounds {
		rounds[i] = scriptedRound{calls: []models.ToolCall{{ID: "c", Name: "echo", Input: json.RawMessage(`{"text":"x"}`)}}}
	}
	client := newScriptedClient(t, rounds)

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	bus := diagnostics.NewBus()
	d := New(client, registry, bus, cfg)

	result, err := d.Run(context.Background(), "claude-x", "sys", nil, "go")
	if err != nil {
		t.Fatalf("expected a synthesized reply, not an error: %v", err)
	}
	if result.Reply == "" {
		t.Fatalf("expected a non-empty error reply")
	}
	if result.Iterations != cfg.MaxIterations {
		t.Fatalf("expected iterations to report the exhausted cap, got %d", result.Iterations)
	}

	errs := bus.RecentErrors(10)
	found := false
	for _, e := range errs {
		if e.Message == "tool_loop_cap_exceeded" {
			found = true
			if e.Fields["category"] != "internal" {
				t.Fatalf("expected category=internal, got %v", e.Fields["category"])
			}
		}
	}
	if !found {
		t.Fatalf("expected a tool_loop_cap_exceeded error event, got %+v", errs)
	}
}

// --- test doubles ---

type echoTool struct{}

func (e *echoTool) Spec() tools.Spec {
	return tools.Spec{Name: "echo", Description: "echoes text", Parameters: map[string]any{"type": "object"}}
}

func (e *echoTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var in struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(params, &in)
	return &models.ToolResult{Content: in.Text}, nil
}

type bigTool struct{ size int }

func (b *bigTool) Spec() tools.Spec {
	return tools.Spec{Name: "big", Description: "returns a large payload", Parameters: map[string]any{"type": "object"}}
}

func (b *bigTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return &models.ToolResult{Content: strings.Repeat("x", b.size)}, nil
}
