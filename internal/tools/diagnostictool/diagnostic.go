// Package diagnostictool exposes the diagnostics bus's emit/query/stats
// surface as model-facing tools.
package diagnostictool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nexuscore/agentrt/internal/diagnostics"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// RegisterAll registers the full diagnostic_* tool family against reg,
// backed by bus.
func RegisterAll(reg *tools.Registry, bus *diagnostics.Bus) error {
	for _, t := range []tools.Tool{
		&EmitTool{bus},
		&QueryTool{bus},
		&StatsTool{bus},
		&StatusTool{bus},
		&ReportTool{bus},
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func errResult(message string) *models.ToolResult {
	return &models.ToolResult{Content: message, IsError: true}
}

func okJSON(v any) *models.ToolResult {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &models.ToolResult{Content: string(payload)}
}

// EmitTool implements diagnostic_emit, letting a session record a custom
// diagnostic event (used by sub-agents and skills to surface progress).
type EmitTool struct{ bus *diagnostics.Bus }

func (t *EmitTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "diagnostic_emit",
		Description: "Record a diagnostic event on the shared bus.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":        map[string]any{"type": "string", "description": "event type, e.g. session.state or error"},
				"message":     map[string]any{"type": "string"},
				"session_key": map[string]any{"type": "string"},
				"channel":     map[string]any{"type": "string"},
				"is_error":    map[string]any{"type": "boolean"},
				"fields":      map[string]any{"type": "object"},
			},
			"required": []string{"type", "message"},
		},
	}
}

func (t *EmitTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Type       string         `json:"type"`
		Message    string         `json:"message"`
		SessionKey string         `json:"session_key"`
		Channel    string         `json:"channel"`
		IsError    bool           `json:"is_error"`
		Fields     map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Type) == "" {
		return errResult("type must not be empty"), nil
	}
	evt := t.bus.Emit(diagnostics.EventInput{
		Type:       diagnostics.EventType(input.Type),
		Message:    input.Message,
		SessionKey: input.SessionKey,
		Channel:    input.Channel,
		IsError:    input.IsError,
		Fields:     input.Fields,
	})
	return okJSON(evt), nil
}

// QueryTool implements diagnostic_query.
type QueryTool struct{ bus *diagnostics.Bus }

func (t *QueryTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "diagnostic_query",
		Description: "Query recent diagnostic events by type, session, channel, or time range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"types":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"session_key": map[string]any{"type": "string"},
				"channel":     map[string]any{"type": "string"},
				"since_ms":    map[string]any{"type": "integer"},
				"until_ms":    map[string]any{"type": "integer"},
				"errors_only": map[string]any{"type": "boolean"},
				"limit":       map[string]any{"type": "integer"},
			},
		},
	}
}

func (t *QueryTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Types      []string `json:"types"`
		SessionKey string   `json:"session_key"`
		Channel    string   `json:"channel"`
		SinceMs    int64    `json:"since_ms"`
		UntilMs    int64    `json:"until_ms"`
		ErrorsOnly bool     `json:"errors_only"`
		Limit      int      `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	filter := diagnostics.Filter{
		SessionKey: input.SessionKey,
		Channel:    input.Channel,
		ErrorsOnly: input.ErrorsOnly,
		Limit:      input.Limit,
	}
	if len(input.Types) > 0 {
		filter.Types = make(map[diagnostics.EventType]bool, len(input.Types))
		for _, typ := range input.Types {
			filter.Types[diagnostics.EventType(typ)] = true
		}
	}
	if input.SinceMs > 0 {
		filter.Since = time.UnixMilli(input.SinceMs)
	}
	if input.UntilMs > 0 {
		filter.Until = time.UnixMilli(input.UntilMs)
	}

	events, total, hasMore := t.bus.Query(filter)
	return okJSON(map[string]any{
		"events":   events,
		"total":    total,
		"has_more": hasMore,
	}), nil
}

// StatsTool implements diagnostic_stats.
type StatsTool struct{ bus *diagnostics.Bus }

func (t *StatsTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "diagnostic_stats",
		Description: "Summarize stored diagnostic events grouped by type.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *StatsTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return okJSON(map[string]any{"stats": t.bus.Stats()}), nil
}

// StatusTool implements diagnostic_status: a lightweight health summary,
// distinct from Stats in that it answers "is the bus healthy" rather than
// "what happened".
type StatusTool struct{ bus *diagnostics.Bus }

func (t *StatusTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "diagnostic_status",
		Description: "Report the most recent errors (up to 5) and how many were returned.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	recent := t.bus.RecentErrors(5)
	return okJSON(map[string]any{
		"recent_error_count": len(recent),
		"recent_errors":      recent,
	}), nil
}

// ReportTool implements diagnostic_report: a human-readable digest combining
// Stats and RecentErrors, meant to be read directly rather than parsed.
type ReportTool struct{ bus *diagnostics.Bus }

func (t *ReportTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "diagnostic_report",
		Description: "Render a human-readable diagnostics digest: per-type counts plus the most recent errors.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"error_limit": map[string]any{"type": "integer"}},
		},
	}
}

func (t *ReportTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ErrorLimit int `json:"error_limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	if input.ErrorLimit <= 0 {
		input.ErrorLimit = 10
	}

	var buf strings.Builder
	buf.WriteString("diagnostics report\n")
	for _, s := range t.bus.Stats() {
		fmt.Fprintf(&buf, "- %s: count=%d errors=%d avg_ms=%.1f first=%s last=%s\n",
			s.Type, s.Count, s.ErrorCount, s.AvgDurationMs,
			time.UnixMilli(s.FirstTs).UTC().Format(time.RFC3339),
			time.UnixMilli(s.LastTs).UTC().Format(time.RFC3339))
	}
	errs := t.bus.RecentErrors(input.ErrorLimit)
	fmt.Fprintf(&buf, "recent errors (%d):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(&buf, "- [%s] %s: %s\n", time.UnixMilli(e.Ts).UTC().Format(time.RFC3339), e.Type, e.Message)
	}
	return &models.ToolResult{Content: buf.String()}, nil
}
