package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// Config controls filesystem tool defaults, shared across the family.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

const defaultMaxReadBytes = 200000

// ReadTool reads a file from the workspace with an optional offset/limit,
// annotating the result when the file is larger than what was returned.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool builds a read tool scoped to cfg.Workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = defaultMaxReadBytes
	}
	return &ReadTool{resolver: Resolver{Root: cfg.Workspace}, maxBytes: limit}
}

func (t *ReadTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "read_file",
		Description: "Read a file from the workspace with optional offset and byte limit.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string", "description": "Path relative to the workspace root."},
				"offset":    map[string]any{"type": "integer", "minimum": 0, "description": "Byte offset to start reading from."},
				"max_bytes": map[string]any{"type": "integer", "minimum": 0, "description": "Maximum bytes to read, capped by the tool default."},
			},
			"required": []string{"path"},
		},
	}
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Offset < 0 {
		return errResult("offset must be >= 0"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return errResult(err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return errResult(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errResult(fmt.Sprintf("stat file: %v", err)), nil
	}

	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return errResult(fmt.Sprintf("seek file: %v", err)), nil
		}
	}

	limit := t.maxBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}

	remaining := int64(limit)
	if size := info.Size(); size > 0 {
		remaining = size - input.Offset
		if remaining < 0 {
			remaining = 0
		}
		if remaining > int64(limit) {
			remaining = int64(limit)
		}
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return errResult(fmt.Sprintf("read file: %v", err)), nil
	}

	truncated := info.Size() > 0 && input.Offset+int64(len(buf)) < info.Size()

	payload, _ := json.MarshalIndent(map[string]any{
		"path":      input.Path,
		"content":   string(buf),
		"offset":    input.Offset,
		"bytes":     len(buf),
		"truncated": truncated,
	}, "", "  ")

	return &models.ToolResult{Content: string(payload)}, nil
}

func errResult(message string) *models.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &models.ToolResult{Content: message, IsError: true}
	}
	return &models.ToolResult{Content: string(payload), IsError: true}
}
