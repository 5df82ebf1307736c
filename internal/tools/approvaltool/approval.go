// Package approvaltool exposes the approval engine's allowlist/policy
// mutators and command checks as model-facing tools.
package approvaltool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexuscore/agentrt/internal/approval"
	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// RegisterAll registers the full approval_* tool family against reg, backed
// by engine.
func RegisterAll(reg *tools.Registry, engine *approval.Engine) error {
	for _, t := range []tools.Tool{
		&AllowlistAddTool{engine},
		&AllowlistRemoveTool{engine},
		&AllowlistUpdateTool{engine},
		&AllowlistListTool{engine},
		&PolicyGetTool{engine},
		&PolicySetTool{engine},
		&AnalyzeTool{},
		&CheckTool{engine},
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

// AllowlistAddTool implements approval_allowlist_add.
type AllowlistAddTool struct{ engine *approval.Engine }

func (t *AllowlistAddTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_allowlist_add",
		Description: "Add a glob pattern to the shell command allowlist.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern":     map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"pattern"},
		},
	}
}

func (t *AllowlistAddTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Pattern     string `json:"pattern"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	entry, err := t.engine.AddAllowlist(input.Pattern, input.Description)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(entry), nil
}

// AllowlistRemoveTool implements approval_allowlist_remove.
type AllowlistRemoveTool struct{ engine *approval.Engine }

func (t *AllowlistRemoveTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_allowlist_remove",
		Description: "Remove an allowlist entry by id.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"id": map[string]any{"type": "string"}},
			"required":   []string{"id"},
		},
	}
}

func (t *AllowlistRemoveTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	removed := t.engine.RemoveAllowlist(input.ID)
	return okJSON(map[string]bool{"removed": removed}), nil
}

// AllowlistUpdateTool implements approval_allowlist_update.
type AllowlistUpdateTool struct{ engine *approval.Engine }

func (t *AllowlistUpdateTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_allowlist_update",
		Description: "Replace the pattern/description of an existing allowlist entry.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":          map[string]any{"type": "string"},
				"pattern":     map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"id", "pattern"},
		},
	}
}

func (t *AllowlistUpdateTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		ID          string `json:"id"`
		Pattern     string `json:"pattern"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	entry, err := t.engine.UpdateAllowlist(input.ID, input.Pattern, input.Description)
	if err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(entry), nil
}

// AllowlistListTool implements approval_allowlist_list.
type AllowlistListTool struct{ engine *approval.Engine }

func (t *AllowlistListTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_allowlist_list",
		Description: "List every allowlist entry.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *AllowlistListTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return okJSON(map[string]any{"allowlist": t.engine.GetAllowlist()}), nil
}

// PolicyGetTool implements approval_policy_get.
type PolicyGetTool struct{ engine *approval.Engine }

func (t *PolicyGetTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_policy_get",
		Description: "Return the current approval policy.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t *PolicyGetTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return okJSON(t.engine.GetPolicy()), nil
}

// PolicySetTool implements approval_policy_set.
type PolicySetTool struct{ engine *approval.Engine }

func (t *PolicySetTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_policy_set",
		Description: "Replace the approval policy wholesale.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"security":          map[string]any{"type": "string", "enum": []string{"deny", "allowlist", "full"}},
				"ask":               map[string]any{"type": "string", "enum": []string{"off", "on-miss", "always"}},
				"ask_fallback":      map[string]any{"type": "string", "enum": []string{"deny", "allowlist", "full"}},
				"auto_allow_skills": map[string]any{"type": "boolean"},
			},
			"required": []string{"security", "ask"},
		},
	}
}

func (t *PolicySetTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var policy approval.Policy
	if err := json.Unmarshal(params, &policy); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := t.engine.SetPolicy(policy); err != nil {
		return errResult(err.Error()), nil
	}
	return okJSON(policy), nil
}

// AnalyzeTool implements approval_analyze: pure command parsing, no policy
// evaluation.
type AnalyzeTool struct{}

func (t *AnalyzeTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_analyze",
		Description: "Parse a candidate shell command into its segments without evaluating policy.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"command": map[string]any{"type": "string"}},
			"required":   []string{"command"},
		},
	}
}

func (t *AnalyzeTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return okJSON(approval.ParseCommand(input.Command)), nil
}

// CheckTool implements approval_check: parse and evaluate against policy.
type CheckTool struct{ engine *approval.Engine }

func (t *CheckTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "approval_check",
		Description: "Evaluate a candidate shell command against the current policy without running it.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"command": map[string]any{"type": "string"}},
			"required":   []string{"command"},
		},
	}
}

func (t *CheckTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return okJSON(t.engine.Check(input.Command)), nil
}
