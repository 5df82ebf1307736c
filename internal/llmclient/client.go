// Package llmclient defines the outbound contract the turn driver uses to
// talk to a model backend, independent of which provider is wired in.
package llmclient

import (
	"context"

	"github.com/nexuscore/agentrt/pkg/models"
)

// Client is the interface every model backend implements. The turn driver
// depends only on this; the concrete backends (Anthropic in anthropic.go,
// OpenAI in openai.go) live in this package and are selected by configuration.
type Client interface {
	// Complete sends a request and streams the response back chunk by chunk.
	// The channel is closed when the stream ends, successfully or not.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name identifies the backend for logging and model-routing.
	Name() string
}

// CompletionRequest carries everything needed for one model round.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolSpec
	MaxTokens int
}

// CompletionMessage is one turn of the conversation sent to the model.
type CompletionMessage struct {
	Role        models.Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// ToolSpec is the wire shape of a tool definition sent to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// CompletionChunk is one piece of a streamed response.
type CompletionChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Done         bool
	Err          error
	InputTokens  int
	OutputTokens int
}

// Usage summarizes token accounting for a single completion, used for the
// model.usage diagnostic event once a stream finishes.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
