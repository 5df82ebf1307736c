// Package memory implements the memory tool family as a thin adapter over a
// Store interface. The runtime's real store (vector search, disk-backed
// notes, whatever a deployment chooses) is an external collaborator; this
// package only defines the contract and an in-memory reference
// implementation used in tests and small deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexuscore/agentrt/internal/tools"
	"github.com/nexuscore/agentrt/pkg/models"
)

// Entry is one stored memory item.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the collaborator contract every memory tool is built against.
type Store interface {
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, bool, error)
	Append(ctx context.Context, text string, tags []string) (Entry, error)
	Ingest(ctx context.Context, source string, text string) (int, error)
	Stats(ctx context.Context) (count int, lastWrite time.Time, err error)
}

// InMemoryStore is a simple substring-search Store, good enough for tests
// and single-process deployments without an external memory backend.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	seq     int
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	var matches []Entry
	for _, e := range s.entries {
		if q == "" || strings.Contains(strings.ToLower(e.Text), q) {
			matches = append(matches, e)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *InMemoryStore) Append(ctx context.Context, text string, tags []string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := Entry{ID: fmt.Sprintf("mem-%d", s.seq), Text: text, Tags: tags, CreatedAt: time.Now().UTC()}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *InMemoryStore) Ingest(ctx context.Context, source string, text string) (int, error) {
	lines := strings.Split(text, "\n")
	n := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := s.Append(ctx, line, []string{"source:" + source}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *InMemoryStore) Stats(ctx context.Context) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, e := range s.entries {
		if e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return len(s.entries), last, nil
}

// Tool dispatches memory_search/get/append/ingest/stats actions to a Store.
type Tool struct {
	store Store
}

// NewTool builds a memory tool bound to store.
func NewTool(store Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "memory",
		Description: "Search, read, append to, or bulk-ingest the long-term memory store.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{"type": "string", "enum": []string{"search", "get", "append", "ingest", "stats"}},
				"query":  map[string]any{"type": "string"},
				"id":     map[string]any{"type": "string"},
				"text":   map[string]any{"type": "string"},
				"tags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"source": map[string]any{"type": "string"},
				"limit":  map[string]any{"type": "integer", "minimum": 0},
			},
			"required": []string{"action"},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Action string   `json:"action"`
		Query  string   `json:"query"`
		ID     string   `json:"id"`
		Text   string   `json:"text"`
		Tags   []string `json:"tags"`
		Source string   `json:"source"`
		Limit  int      `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	switch input.Action {
	case "search":
		entries, err := t.store.Search(ctx, input.Query, input.Limit)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return jsonResult(map[string]any{"entries": entries})
	case "get":
		if input.ID == "" {
			return errResult("id is required"), nil
		}
		entry, found, err := t.store.Get(ctx, input.ID)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return jsonResult(map[string]any{"entry": entry, "found": found})
	case "append":
		if strings.TrimSpace(input.Text) == "" {
			return errResult("text is required"), nil
		}
		entry, err := t.store.Append(ctx, input.Text, input.Tags)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return jsonResult(map[string]any{"entry": entry})
	case "ingest":
		if strings.TrimSpace(input.Text) == "" {
			return errResult("text is required"), nil
		}
		n, err := t.store.Ingest(ctx, input.Source, input.Text)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return jsonResult(map[string]any{"ingested": n})
	case "stats":
		count, last, err := t.store.Stats(ctx)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return jsonResult(map[string]any{"count": count, "last_write": last})
	default:
		return errResult(fmt.Sprintf("unknown action %q", input.Action)), nil
	}
}

func jsonResult(v any) (*models.ToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(err.Error()), nil
	}
	return &models.ToolResult{Content: string(payload)}, nil
}

func errResult(message string) *models.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &models.ToolResult{Content: message, IsError: true}
	}
	return &models.ToolResult{Content: string(payload), IsError: true}
}
