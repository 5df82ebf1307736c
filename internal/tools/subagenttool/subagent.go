// Package subagenttool exposes sub-agent supervisor operations as
// model-facing tools.
package subagenttool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexuscore/agentrt/internal/subagent"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// RegisterAll registers the full subagent_* tool family against reg, backed
// by sup. parentID identifies the session/turn that owns spawned sub-agents.
func RegisterAll(reg *tools.Registry, sup *subagent.Supervisor, parentID string) error {
	for _, t := range []tools.Tool{
		&CreateTool{sup, parentID},
		&WaitTool{sup},
		&StopTool{sup},
		&ListTool{sup},
		&StatusTool{sup},
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

// CreateTool implements subagent_create.
type CreateTool struct {
	sup      *subagent.Supervisor
	parentID string
}

func (t *CreateTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "subagent_create",
		Description: "Spawn a sub-agent process to work a task in the background.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":       map[string]any{"type": "string"},
				"task":       map[string]any{"type": "string"},
				"timeout_ms": map[string]any{"type": "integer", "description": "optional timeout, default 10 minutes"},
			},
			"required": []string{"name", "task"},
		},
	}
}

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Name      string `json:"name"`
		Task      string `json:"task"`
		TimeoutMs int64  `json:"timeout_ms"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	sa, err := t.sup.Create(ctx, t.parentID, input.Name, input.Task, time.Duration(input.TimeoutMs)*time.Millisecond)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(sa), nil
}

// WaitTool implements subagent_wait.
type WaitTool struct{ sup *subagent.Supervisor }

func (t *WaitTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "subagent_wait",
		Description: "Block until a sub-agent finishes (or the call's own context is cancelled), then report its outcome.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *WaitTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	sa, err := t.sup.WaitFor(ctx, input.ID)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(sa), nil
}

// StopTool implements subagent_stop.
type StopTool struct{ sup *subagent.Supervisor }

func (t *StopTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "subagent_stop",
		Description: "Terminate a running sub-agent.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *StopTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := t.sup.Stop(input.ID); err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(map[string]bool{"stopped": true}), nil
}

// ListTool implements subagent_list.
type ListTool struct{ sup *subagent.Supervisor }

func (t *ListTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "subagent_list",
		Description: "List every tracked sub-agent.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return okJSON(map[string]any{"subagents": t.sup.List()}), nil
}

// StatusTool implements subagent_status, returning the rendered report for
// one sub-agent.
type StatusTool struct{ sup *subagent.Supervisor }

func (t *StatusTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "subagent_status",
		Description: "Return a sub-agent's current status and captured output report.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	report, err := t.sup.GenerateReport(input.ID)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return &models.ToolResult{Content: report}, nil
}
