// Package planning implements the todo-list tool the model uses to track
// its own multi-step plans within a session.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

const maxTodos = 20

// TodoStatus is the lifecycle state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is one entry of a session's plan.
type Todo struct {
	ID       string     `json:"id"`
	Content  string     `json:"content"`
	Status   TodoStatus `json:"status"`
}

// Store holds one todo list. A Tool reads and replaces the list of the
// Store it was built with; every caller of that Tool shares the list.
type Store struct {
	mu    sync.Mutex
	items []Todo
}

// NewStore returns an empty todo store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current list.
func (s *Store) Snapshot() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Todo(nil), s.items...)
}

// Replace validates and swaps in a new todo list, enforcing the ≤20 items
// and ≤1 in-progress invariants.
func (s *Store) Replace(items []Todo) error {
	if len(items) > maxTodos {
		return fmt.Errorf("planning: at most %d todos allowed, got %d", maxTodos, len(items))
	}
	inProgress := 0
	for _, item := range items {
		switch item.Status {
		case TodoPending, TodoInProgress, TodoCompleted:
		default:
			return fmt.Errorf("planning: unknown status %q", item.Status)
		}
		if item.Status == TodoInProgress {
			inProgress++
		}
		if item.Content == "" {
			return fmt.Errorf("planning: todo content is required")
		}
	}
	if inProgress > 1 {
		return fmt.Errorf("planning: at most one todo may be in_progress, got %d", inProgress)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Todo(nil), items...)
	return nil
}

// Tool is the model-facing "todo_write" tool backed by a Store.
type Tool struct {
	store *Store
}

// NewTool builds a todo tool bound to store.
func NewTool(store *Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "todo_write",
		Description: "Replace the current todo list. At most 20 items, at most 1 in_progress.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"todos": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":      map[string]any{"type": "string"},
							"content": map[string]any{"type": "string"},
							"status":  map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
						},
						"required": []string{"id", "content", "status"},
					},
				},
			},
			"required": []string{"todos"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Todos []Todo `json:"todos"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := t.store.Replace(input.Todos); err != nil {
		return errResult(err.Error()), nil
	}
	payload, _ := json.MarshalIndent(map[string]any{"todos": t.store.Snapshot()}, "", "  ")
	return &models.ToolResult{Content: string(payload)}, nil
}

func errResult(message string) *models.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &models.ToolResult{Content: message, IsError: true}
	}
	return &models.ToolResult{Content: string(payload), IsError: true}
}
