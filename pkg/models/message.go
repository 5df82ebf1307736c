// Package models provides the wire-level domain types shared across the
// runtime: transport adapters, the ingress router, the turn driver, and the
// tool registry all exchange these types rather than package-private ones.
package models

import "encoding/json"

// ChannelType identifies a transport integration by a stable string id.
type ChannelType string

// ChatType classifies the scope of a chat the message arrived on.
type ChatType string

const (
	ChatDirect  ChatType = "direct"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// MessageContext is the normalized inbound event consumed by the ingress
// router. Every transport adapter is responsible for producing one of these
// from its own wire format; messageId must be stable across retransmissions
// of the same logical message on the same transport.
type MessageContext struct {
	Channel   ChannelType `json:"channel"`
	ChatType  ChatType    `json:"chat_type"`
	ChatID    string      `json:"chat_id"`
	UserID    string      `json:"user_id"`
	UserName  string      `json:"user_name,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Text      string      `json:"text"`
	ReplyTo   string      `json:"reply_to,omitempty"`
	TimestampMs int64     `json:"timestamp_ms"`
	Mentioned bool        `json:"mentioned"`
}

// SessionKey returns the scheduling/session key for a message context.
func (c MessageContext) SessionKey() string {
	return string(c.Channel) + ":" + c.ChatID
}

// Role identifies the speaker of a history or completion message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// HistoryMessage is one entry of a session's bounded conversation history.
type HistoryMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is a model-issued request to invoke a registered tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the structured outcome of a single tool call. Exactly one
// result is produced per call before the next model round.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}
