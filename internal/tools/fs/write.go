package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// largeContentThreshold gates write/edit calls that carry a lot of new
// content: such a call is rejected with an error result telling the model
// to split the content across several smaller calls.
const largeContentThreshold = 5000

// WriteTool creates or overwrites a file in the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool builds a write tool scoped to cfg.Workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "write_file",
		Description: "Create or overwrite a file in the workspace with the given content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path relative to the workspace root."},
				"content": map[string]any{"type": "string", "description": "Full file content to write."},
			},
			"required": []string{"path", "content"},
		},
	}
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errResult("path is required"), nil
	}

	if len(input.Content) > largeContentThreshold {
		return errResult(fmt.Sprintf(
			"content is %d chars, over the %d-char limit for a single write_file call; "+
				"split it and write the file in smaller pieces (e.g. write the first chunk, "+
				"then use edit_file to append the rest)",
			len(input.Content), largeContentThreshold)), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return errResult(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errResult(fmt.Sprintf("create parent directories: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return errResult(fmt.Sprintf("write file: %v", err)), nil
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"path":  input.Path,
		"bytes": len(input.Content),
	}, "", "  ")

	return &models.ToolResult{Content: string(payload)}, nil
}
