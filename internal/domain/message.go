package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// AnnotationKind tags an assistant message with its place in the
// ask/confirm protocol.
type AnnotationKind string

const (
	AnnotationPlain   AnnotationKind = "plain"
	AnnotationAsk     AnnotationKind = "ask"
	AnnotationConfirm AnnotationKind = "confirm"
)

// Annotation is the structured form of the ask/confirm markers. Body is the
// message text with the marker stripped, ready for display.
type Annotation struct {
	Kind AnnotationKind `json:"kind"`
	Body string         `json:"body"`
}

// Message represents a single message in a conversation.
type Message struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Name       string      `json:"name,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	Annotation *Annotation `json:"annotation,omitempty"`
	Timestamp  time.Time   `json:"-"`
}

// IsAsk reports whether the message requests clarification or approval.
func (m Message) IsAsk() bool {
	return m.Annotation != nil && m.Annotation.Kind != AnnotationPlain
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}
