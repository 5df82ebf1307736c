// Package turn drives one tool-using round trip with the model: prompt
// assembly, the iterate-while-tool_use loop, tool dispatch through the
// registry, and per-call retry/truncation guards.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexuscore/agentrt/internal/backoff"
	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/llmclient"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// Config bounds one Run call.
type Config struct {
	// MaxIterations caps stream->tools round trips. Default 50.
	MaxIterations int
	// MaxToolCalls caps total tool invocations across the run (0 = unlimited).
	MaxToolCalls int
	// MaxWallTime bounds total run duration (0 = no limit).
	MaxWallTime time.Duration
	// MaxTokens is the default response token budget.
	MaxTokens int
	// ToolResultMaxBytes truncates a tool result fed back to the model.
	// Default 50KB.
	ToolResultMaxBytes int
	// RetryAttempts is the total attempts (including the first) for a
	// transient network failure during a model round. Default 2 (one retry).
	RetryAttempts int
	// RequestLogDir, when non-empty, receives one JSON file per turn
	// (logs/request-<iso>.json) recording the model id, outgoing messages,
	// and tool specs sent on the turn's first model round. Empty disables
	// request logging.
	RequestLogDir string
}

// DefaultConfig mirrors the turn driver's defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      50,
		MaxToolCalls:       0,
		MaxWallTime:        0,
		MaxTokens:          4096,
		ToolResultMaxBytes: 50 * 1024,
		RetryAttempts:      2,
	}
}

func sanitize(cfg Config) Config {
	d := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.ToolResultMaxBytes <= 0 {
		cfg.ToolResultMaxBytes = d.ToolResultMaxBytes
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = d.RetryAttempts
	}
	if cfg.MaxToolCalls < 0 {
		cfg.MaxToolCalls = 0
	}
	if cfg.MaxWallTime < 0 {
		cfg.MaxWallTime = 0
	}
	return cfg
}

// Driver runs turns against a model client and a tool registry.
type Driver struct {
	client   llmclient.Client
	registry *tools.Registry
	bus      *diagnostics.Bus
	config   Config
}

// New builds a Driver. config is sanitized against DefaultConfig.
func New(client llmclient.Client, registry *tools.Registry, bus *diagnostics.Bus, config Config) *Driver {
	return &Driver{client: client, registry: registry, bus: bus, config: sanitize(config)}
}

// Result is the outcome of one Run.
type Result struct {
	Reply         string
	History       []models.HistoryMessage
	Iterations    int
	ToolCallCount int
	InputTokens   int
	OutputTokens  int
}

// Run assembles a prompt from system+history+the new user text, drives the
// tool-use loop to completion, and returns the final assistant reply along
// with the updated history (system prompt excluded — callers persist it
// separately if they want it compacted).
func (d *Driver) Run(ctx context.Context, model, system string, history []models.HistoryMessage, userText string) (*Result, error) {
	runCtx := ctx
	if d.config.MaxWallTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.config.MaxWallTime)
		defer cancel()
	}

	messages := append([]models.HistoryMessage{}, history...)
	messages = append(messages, models.HistoryMessage{Role: models.RoleUser, Content: userText})

	d.logRequest(model, messages)

	var totalToolCalls, totalInput, totalOutput int

	for iteration := 0; iteration < d.config.MaxIterations; iteration++ {
		select {
		case <-runCtx.Done():
			return nil, fmt.Errorf("turn: %w", runCtx.Err())
		default:
		}

		text, toolCalls, usage, err := d.streamOnce(runCtx, model, system, messages)
		if err != nil {
			return nil, err
		}
		totalInput += usage.InputTokens
		totalOutput += usage.OutputTokens
		d.emit(diagnostics.EventModelUsage, false, "model round completed", map[string]any{
			"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens, "iteration": iteration,
		})

		if d.config.MaxToolCalls > 0 && totalToolCalls+len(toolCalls) > d.config.MaxToolCalls {
			return nil, fmt.Errorf("turn: tool calls exceed maximum of %d for run", d.config.MaxToolCalls)
		}
		totalToolCalls += len(toolCalls)

		messages = append(messages, models.HistoryMessage{Role: models.RoleAssistant, Content: text, ToolCalls: toolCalls})

		if len(toolCalls) == 0 {
			d.emit(diagnostics.EventMessageProcessed, false, "turn completed", map[string]any{"iterations": iteration + 1})
			return &Result{
				Reply:         text,
				History:       messages,
				Iterations:    iteration + 1,
				ToolCallCount: totalToolCalls,
				InputTokens:   totalInput,
				OutputTokens:  totalOutput,
			}, nil
		}

		results := d.executeTools(runCtx, toolCalls)
		messages = append(messages, models.HistoryMessage{Role: models.RoleTool, ToolResults: results})
	}

	d.emit(diagnostics.EventError, true, "tool_loop_cap_exceeded", map[string]any{
		"category":       "internal",
		"max_iterations": d.config.MaxIterations,
	})
	reply := "I wasn't able to finish this within the allotted number of steps. Please try rephrasing or narrowing the request."
	messages = append(messages, models.HistoryMessage{Role: models.RoleAssistant, Content: reply})
	return &Result{
		Reply:         reply,
		History:       messages,
		Iterations:    d.config.MaxIterations,
		ToolCallCount: totalToolCalls,
		InputTokens:   totalInput,
		OutputTokens:  totalOutput,
	}, nil
}

// streamOnce performs one model round, retrying once with exponential
// backoff if the failure looks transient.
func (d *Driver) streamOnce(ctx context.Context, model, system string, history []models.HistoryMessage) (string, []models.ToolCall, llmclient.Usage, error) {
	req := &llmclient.CompletionRequest{
		Model:     model,
		System:    system,
		Messages:  toCompletionMessages(history),
		Tools:     d.toolSpecs(),
		MaxTokens: d.config.MaxTokens,
	}

	result, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), d.config.RetryAttempts,
		func(attempt int) (streamOutcome, error) {
			text, calls, usage, streamErr := d.consumeStream(ctx, req)
			if streamErr != nil && !isTransient(streamErr) {
				// Non-transient: report as success-with-error so the retry
				// loop doesn't burn its remaining attempts chasing a failure
				// that won't resolve by trying again.
				return streamOutcome{permanentErr: streamErr}, nil
			}
			return streamOutcome{text: text, calls: calls, usage: usage}, streamErr
		})

	if err != nil {
		if result.LastError != nil {
			d.emit(diagnostics.EventError, true, result.LastError.Error(), nil)
		}
		return "", nil, llmclient.Usage{}, fmt.Errorf("turn: model call failed after %d attempt(s): %w", result.Attempts, err)
	}
	if result.Value.permanentErr != nil {
		return "", nil, llmclient.Usage{}, result.Value.permanentErr
	}

	return result.Value.text, result.Value.calls, result.Value.usage, nil
}

type streamOutcome struct {
	text         string
	calls        []models.ToolCall
	usage        llmclient.Usage
	permanentErr error
}

func (d *Driver) consumeStream(ctx context.Context, req *llmclient.CompletionRequest) (string, []models.ToolCall, llmclient.Usage, error) {
	chunks, err := d.client.Complete(ctx, req)
	if err != nil {
		return "", nil, llmclient.Usage{}, err
	}

	var text strings.Builder
	var calls []models.ToolCall
	var usage llmclient.Usage

	for chunk := range chunks {
		if chunk.Err != nil {
			return "", nil, llmclient.Usage{}, chunk.Err
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Done {
			usage = llmclient.Usage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens}
		}
	}

	return text.String(), calls, usage, nil
}

// isTransient classifies network-ish failures as retryable, mirroring the
// same category of errors (timeouts, connection resets, stream hiccups)
// that warrant one retry rather than failing the whole turn outright.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "eof", "temporary failure", "stream error"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// logRequest writes the turn's outgoing request payload to RequestLogDir as
// logs/request-<iso>.json. Best-effort: a log write failure never fails the
// turn itself.
func (d *Driver) logRequest(model string, messages []models.HistoryMessage) {
	if d.config.RequestLogDir == "" {
		return
	}
	payload := map[string]any{
		"model":    model,
		"messages": messages,
		"tools":    d.toolSpecs(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	name := fmt.Sprintf("request-%s.json", time.Now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.WriteFile(filepath.Join(d.config.RequestLogDir, name), data, 0o644); err != nil {
		d.emit(diagnostics.EventError, true, "request log write failed", map[string]any{
			"category": "internal", "error": err.Error(),
		})
	}
}

func (d *Driver) toolSpecs() []llmclient.ToolSpec {
	if d.registry == nil {
		return nil
	}
	specs := d.registry.AsLLMTools()
	out := make([]llmclient.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llmclient.ToolSpec{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return out
}

func (d *Driver) executeTools(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		start := time.Now()
		res, err := d.registry.Execute(ctx, call.Name, call.Input)
		if err != nil {
			res = &models.ToolResult{Content: err.Error(), IsError: true}
		}
		truncated, wasTruncated := truncate(res.Content, d.config.ToolResultMaxBytes)
		res.Content = truncated
		res.CallID = call.ID

		d.emit(diagnostics.EventToolCall, res.IsError, call.Name, map[string]any{
			"tool": call.Name, "duration_ms": time.Since(start).Milliseconds(), "truncated": wasTruncated,
		})
		results = append(results, *res)
	}
	return results
}

// truncate caps content to max bytes, appending an explicit marker so the
// model knows the result was cut rather than simply short.
func truncate(content string, max int) (string, bool) {
	if len(content) <= max {
		return content, false
	}
	return content[:max] + "\n...[truncated, result exceeded the tool output limit]", true
}

func toCompletionMessages(history []models.HistoryMessage) []llmclient.CompletionMessage {
	out := make([]llmclient.CompletionMessage, 0, len(history))
	for _, h := range history {
		out = append(out, llmclient.CompletionMessage{
			Role:        h.Role,
			Content:     h.Content,
			ToolCalls:   h.ToolCalls,
			ToolResults: h.ToolResults,
		})
	}
	return out
}

func (d *Driver) emit(t diagnostics.EventType, isErr bool, message string, fields map[string]any) {
	if d.bus == nil {
		return
	}
	d.bus.Emit(diagnostics.EventInput{Type: t, IsError: isErr, Message: message, Fields: fields})
}
