package memory

import (
	"context"
	"encoding/json"
	"testing"
)

func TestAppendThenSearch(t *testing.T) {
	tool := NewTool(NewInMemoryStore())
	ctx := context.Background()

	params, _ := json.Marshal(map[string]any{"action": "append", "text": "remember the launch date is friday"})
	res, err := tool.Execute(ctx, params)
	if err != nil || res.IsError {
		t.Fatalf("append failed: err=%v res=%+v", err, res)
	}

	params, _ = json.Marshal(map[string]any{"action": "search", "query": "launch"})
	res, err = tool.Execute(ctx, params)
	if err != nil || res.IsError {
		t.Fatalf("search failed: err=%v res=%+v", err, res)
	}
}

func TestIngestSplitsLines(t *testing.T) {
	store := NewInMemoryStore()
	tool := NewTool(store)
	ctx := context.Background()

	params, _ := json.Marshal(map[string]any{"action": "ingest", "source": "notes", "text": "line one\nline two\n\nline three"})
	res, err := tool.Execute(ctx, params)
	if err != nil || res.IsError {
		t.Fatalf("ingest failed: err=%v res=%+v", err, res)
	}

	count, _, _ := store.Stats(ctx)
	if count != 3 {
		t.Fatalf("expected 3 ingested entries, got %d", count)
	}
}

func TestUnknownActionIsError(t *testing.T) {
	tool := NewTool(NewInMemoryStore())
	params, _ := json.Marshal(map[string]any{"action": "bogus"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error for unknown action")
	}
}

func TestGetMissingEntryReportsNotFound(t *testing.T) {
	tool := NewTool(NewInMemoryStore())
	params, _ := json.Marshal(map[string]any{"action": "get", "id": "mem-99"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: err=%v res=%+v", err, res)
	}
}
