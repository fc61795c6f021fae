package domain

import (
	"bytes"
	"context"
	"encoding/json"
)

// ToolName identifies one of the assistant's tools.
type ToolName string

const (
	ToolSearchContacts       ToolName = "search_contacts"
	ToolSearchNotes          ToolName = "search_notes"
	ToolCreateContact        ToolName = "create_contact"
	ToolAddNote              ToolName = "add_note"
	ToolCreateDeal           ToolName = "create_deal"
	ToolUpdateDealStage      ToolName = "update_deal_stage"
	ToolPipelineSummary      ToolName = "pipeline_summary"
	ToolSuggestFollowupEmail ToolName = "suggest_followup_email"
	ToolWebSearch            ToolName = "web_search"
)

// IsWrite reports whether the tool mutates CRM records.
func (n ToolName) IsWrite() bool {
	switch n {
	case ToolCreateContact, ToolAddNote, ToolCreateDeal, ToolUpdateDealStage:
		return true
	}
	return false
}

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolDefinition is a registry entry: the schema plus whether the tool is
// available under the current capabilities.
type ToolDefinition struct {
	Name        ToolName
	Description string
	Schema      json.RawMessage
	Enabled     bool
}

// ToolSchema converts the definition to the provider-facing form.
func (d ToolDefinition) ToolSchema() ToolSchema {
	return ToolSchema{Name: string(d.Name), Description: d.Description, Parameters: d.Schema}
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolOutcome discriminates ToolResult.
type ToolOutcome string

const (
	OutcomeSuccess   ToolOutcome = "success"
	OutcomeNeedsInfo ToolOutcome = "needs_info"
	OutcomeError     ToolOutcome = "error"
)

// ToolResult is the outcome of executing a tool. Exactly one of Data,
// Prompt or Reason is meaningful, selected by Outcome.
type ToolResult struct {
	Outcome ToolOutcome `json:"status"`
	Data    any         `json:"data,omitempty"`
	Warning string      `json:"warning,omitempty"`
	Prompt  string      `json:"prompt,omitempty"`
	Reason  string      `json:"error,omitempty"`
}

// Success wraps a payload.
func Success(data any) ToolResult {
	return ToolResult{Outcome: OutcomeSuccess, Data: data}
}

// SuccessWithWarning wraps a payload together with a secondary, non-fatal
// problem the model should mention.
func SuccessWithWarning(data any, warning string) ToolResult {
	return ToolResult{Outcome: OutcomeSuccess, Data: data, Warning: warning}
}

// NeedsInfo asks the model to gather more input from the user.
func NeedsInfo(prompt string) ToolResult {
	return ToolResult{Outcome: OutcomeNeedsInfo, Prompt: prompt}
}

// Failure reports a dependency or dispatch error.
func Failure(reason string) ToolResult {
	return ToolResult{Outcome: OutcomeError, Reason: reason}
}

// IsError reports whether the result is an Error outcome.
func (r ToolResult) IsError() bool { return r.Outcome == OutcomeError }

// Content serializes the result for a tool message. HTML escaping is off so
// prompt text survives a decode byte for byte.
func (r ToolResult) Content() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		fallback, _ := json.Marshal(Failure("encode tool result: " + err.Error()))
		return string(fallback)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// ParseToolResult decodes the content of a tool message.
func ParseToolResult(content string) (ToolResult, error) {
	var r ToolResult
	err := json.Unmarshal([]byte(content), &r)
	return r, err
}

// ToolDispatcher validates and runs one tool call. Argument problems come
// back as NeedsInfo and unknown tools as an error result, never as a Go
// error, so the conversation can continue.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call ToolCall, caller Caller) ToolResult
	// Schemas lists the tools offered to the model.
	Schemas() []ToolSchema
}

// StageVocabulary reports the configured stage names per deal kind.
type StageVocabulary interface {
	Vocabulary(ctx context.Context) map[DealKind][]string
}
