package fs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

const maxGrepMatches = 200

// GrepTool searches workspace files for a regular expression.
type GrepTool struct {
	resolver Resolver
}

// NewGrepTool builds a grep tool scoped to cfg.Workspace.
func NewGrepTool(cfg Config) *GrepTool {
	return &GrepTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *GrepTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "grep",
		Description: "Search workspace files for a regular expression, optionally scoped to a subdirectory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{"type": "string", "description": "RE2 regular expression."},
				"path":    map[string]any{"type": "string", "description": "Directory to search, relative to the workspace root (default: root)."},
			},
			"required": []string{"pattern"},
		},
	}
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return errResult("pattern is required"), nil
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return errResult(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	searchPath := input.Path
	if searchPath == "" {
		searchPath = "."
	}
	root, err := t.resolver.Resolve(searchPath)
	if err != nil {
		return errResult(err.Error()), nil
	}

	var matches []grepMatch
	truncated := false

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || len(matches) >= maxGrepMatches {
			return nil
		}
		if strings.Contains(path, string(os.PathSeparator)+".git"+string(os.PathSeparator)) {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(root, path)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				matches = append(matches, grepMatch{Path: rel, Line: lineNo, Text: scanner.Text()})
				if len(matches) >= maxGrepMatches {
					truncated = true
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return errResult(fmt.Sprintf("walk workspace: %v", walkErr)), nil
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}, "", "  ")

	return &models.ToolResult{Content: string(payload)}, nil
}
