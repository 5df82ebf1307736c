package llmclient

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuscore/agentrt/pkg/models"
)

func TestConvertOpenAIMessagesIncludesSystemPrompt(t *testing.T) {
	msgs := convertOpenAIMessages(nil, "be terse")
	if len(msgs) != 1 || msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "be terse" {
		t.Fatalf("expected leading system message, got %+v", msgs)
	}
}

func TestConvertOpenAIMessagesMapsToolResults(t *testing.T) {
	msgs := convertOpenAIMessages([]CompletionMessage{
		{
			Role: models.RoleTool,
			ToolResults: []models.ToolResult{
				{CallID: "call-1", Content: "42"},
			},
		},
	}, "")
	if len(msgs) != 1 || msgs[0].Role != openai.ChatMessageRoleTool || msgs[0].ToolCallID != "call-1" {
		t.Fatalf("expected tool result mapped to tool message, got %+v", msgs)
	}
}

func TestConvertOpenAIMessagesMapsAssistantToolCalls(t *testing.T) {
	msgs := convertOpenAIMessages([]CompletionMessage{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "read_file", Input: json.RawMessage(`{"path":"a.txt"}`)},
			},
		},
	}, "")
	if len(msgs) != 1 || len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Name != "read_file" {
		t.Fatalf("expected assistant tool call mapped, got %+v", msgs)
	}
}

func TestConvertOpenAIToolsMapsSpecs(t *testing.T) {
	tools := convertOpenAITools([]ToolSpec{
		{Name: "grep", Description: "search files", Parameters: map[string]any{"type": "object"}},
	})
	if len(tools) != 1 || tools[0].Function.Name != "grep" {
		t.Fatalf("expected one mapped tool, got %+v", tools)
	}
}

func TestAnthropicClientModelDefaulting(t *testing.T) {
	c := &AnthropicClient{defaultModel: "claude-sonnet-4-20250514"}
	if got := c.model(""); got != "claude-sonnet-4-20250514" {
		t.Fatalf("expected default model, got %s", got)
	}
	if got := c.model("claude-opus-4-20250514"); got != "claude-opus-4-20250514" {
		t.Fatalf("expected explicit model to win, got %s", got)
	}
}

func TestAnthropicClientMaxTokensDefaulting(t *testing.T) {
	c := &AnthropicClient{}
	if got := c.maxTokens(0); got != 4096 {
		t.Fatalf("expected default max tokens 4096, got %d", got)
	}
	if got := c.maxTokens(2048); got != 2048 {
		t.Fatalf("expected explicit max tokens to win, got %d", got)
	}
}

func TestConvertMessagesConvertsPlainUserMessage(t *testing.T) {
	msgs, err := convertMessages([]CompletionMessage{
		{Role: models.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one converted message, got %d", len(msgs))
	}
}

func TestConvertMessagesRejectsInvalidToolInput(t *testing.T) {
	_, err := convertMessages([]CompletionMessage{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "1", Name: "bad", Input: json.RawMessage(`not json`)},
			},
		},
	})
	if err == nil {
		t.Fatalf("expected error for invalid tool call input")
	}
}
