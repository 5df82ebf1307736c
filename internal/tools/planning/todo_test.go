package planning

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestReplaceRejectsTooManyItems(t *testing.T) {
	s := NewStore()
	items := make([]Todo, 21)
	for i := range items {
		items[i] = Todo{ID: "x", Content: "do thing", Status: TodoPending}
	}
	if err := s.Replace(items); err == nil {
		t.Fatalf("expected error for 21 todos")
	}
}

func TestReplaceRejectsMultipleInProgress(t *testing.T) {
	s := NewStore()
	items := []Todo{
		{ID: "1", Content: "a", Status: TodoInProgress},
		{ID: "2", Content: "b", Status: TodoInProgress},
	}
	if err := s.Replace(items); err == nil {
		t.Fatalf("expected error for two in_progress todos")
	}
}

func TestReplaceAcceptsValidList(t *testing.T) {
	s := NewStore()
	items := []Todo{
		{ID: "1", Content: "a", Status: TodoCompleted},
		{ID: "2", Content: "b", Status: TodoInProgress},
		{ID: "3", Content: "c", Status: TodoPending},
	}
	if err := s.Replace(items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Snapshot()) != 3 {
		t.Fatalf("expected 3 todos stored")
	}
}

func TestToolExecuteSurfacesValidationError(t *testing.T) {
	tool := NewTool(NewStore())
	params, _ := json.Marshal(map[string]any{
		"todos": []map[string]any{
			{"id": "1", "content": "a", "status": "in_progress"},
			{"id": "2", "content": "b", "status": "in_progress"},
		},
	})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "in_progress") {
		t.Fatalf("expected validation error, got %+v", res)
	}
}
