// Package history implements the ingress router's HistoryStore: an
// in-memory, per-session transcript with bounded-size compaction so a
// long-running chat never grows its prompt without limit.
package history

import (
	"sync"

	"github.com/nexuscore/agentrt/pkg/models"
)

// DefaultMaxMessages is the message-count threshold past which compaction
// drops the oldest user+assistant pair.
const DefaultMaxMessages = 100

// Store holds each session's conversation history in memory, compacting it
// on write once it exceeds MaxMessages.
type Store struct {
	mu          sync.Mutex
	sessions    map[string][]models.HistoryMessage
	maxMessages int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxMessages overrides the compaction threshold.
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// New builds an empty history Store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string][]models.HistoryMessage),
		maxMessages: DefaultMaxMessages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns a copy of sessionKey's stored transcript.
func (s *Store) Load(sessionKey string) []models.HistoryMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HistoryMessage(nil), s.sessions[sessionKey]...)
}

// Append adds messages to sessionKey's transcript, then compacts if it now
// exceeds the configured threshold.
func (s *Store) Append(sessionKey string, messages ...models.HistoryMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey] = compact(append(s.sessions[sessionKey], messages...), s.maxMessages)
}

// Clear drops sessionKey's stored transcript entirely.
func (s *Store) Clear(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey)
}

// compact drops the oldest user+assistant pair at a time until the
// transcript is at or under max, preserving message order. A lone leading
// message with no following pair partner is left alone rather than dropped
// half a turn.
func compact(messages []models.HistoryMessage, max int) []models.HistoryMessage {
	for max > 0 && len(messages) > max {
		idx := firstPairStart(messages)
		if idx < 0 {
			break
		}
		messages = append(append([]models.HistoryMessage(nil), messages[:idx]...), messages[idx+2:]...)
	}
	return messages
}

// firstPairStart returns the index of the first user message immediately
// followed by an assistant message, or -1 if no such pair exists.
func firstPairStart(messages []models.HistoryMessage) int {
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].Role == models.RoleUser && messages[i+1].Role == models.RoleAssistant {
			return i
		}
	}
	return -1
}
