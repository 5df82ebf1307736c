package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// EditTool applies one or more find/replace edits to a file. Unlike a plain
// strings.Replace, it rejects an edit whose old_text is ambiguous (occurs
// more than once) unless replace_all is set, so a model can never silently
// rewrite the wrong occurrence.
type EditTool struct {
	resolver Resolver
}

// NewEditTool builds an edit tool scoped to cfg.Workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "edit_file",
		Description: "Apply one or more find/replace edits to a file in the workspace.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Path relative to the workspace root."},
				"edits": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"old_text":    map[string]any{"type": "string"},
							"new_text":    map[string]any{"type": "string"},
							"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence instead of requiring exactly one."},
						},
						"required": []string{"old_text", "new_text"},
					},
				},
			},
			"required": []string{"path", "edits"},
		},
	}
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText    string `json:"old_text"`
			NewText    string `json:"new_text"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult("path is required"), nil
	}
	if len(input.Edits) == 0 {
		return errResult("edits are required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return errResult(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errResult(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	replacements := 0

	for _, edit := range input.Edits {
		if edit.OldText == "" {
			return errResult("old_text is required"), nil
		}
		if len(edit.NewText) > largeContentThreshold {
			return errResult(fmt.Sprintf(
				"new_text is %d chars, over the %d-char limit for a single edit_file call; "+
					"split it into multiple smaller edits instead of one large replacement",
				len(edit.NewText), largeContentThreshold)), nil
		}
		count := strings.Count(content, edit.OldText)
		if count == 0 {
			return errResult("old_text not found"), nil
		}
		if count > 1 && !edit.ReplaceAll {
			return errResult(fmt.Sprintf("old_text is ambiguous: matches %d locations, set replace_all to replace them all", count)), nil
		}
		if edit.ReplaceAll {
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
			replacements += count
		} else {
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errResult(fmt.Sprintf("write file: %v", err)), nil
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"path":         input.Path,
		"replacements": replacements,
	}, "", "  ")

	return &models.ToolResult{Content: string(payload)}, nil
}
