package usecase

import (
	"strings"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// ContextBuilder constructs the prompt message array for model calls.
type ContextBuilder struct {
	model       string
	maxTokens   int
	temperature float64
	maxMessages int
	now         func() time.Time
}

// NewContextBuilder creates a context builder. maxMessages <= 0 keeps the
// whole client history.
func NewContextBuilder(model string, maxTokens int, temperature float64, maxMessages int) *ContextBuilder {
	return &ContextBuilder{
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

// Build assembles: system prompt + cleaned client history.
func (cb *ContextBuilder) Build(systemPrompt string, history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	hist := cb.truncateHistory(cleanHistory(history))

	messages := make([]domain.Message, 0, 1+len(hist))
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   systemPrompt,
		Timestamp: cb.now(),
	})
	messages = append(messages, hist...)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   cb.maxTokens,
		Temperature: cb.temperature,
	}
}

// cleanHistory keeps the user and assistant text turns of a client-supplied
// history. System messages are never accepted from clients, and tool
// plumbing from earlier requests is dropped because its call ids no longer
// pair with anything the provider has seen.
func cleanHistory(history []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, domain.Message{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out
}

// truncateHistory keeps the newest maxMessages turns, starting on a user turn
// when possible.
func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}
	kept := history[len(history)-cb.maxMessages:]
	for i, m := range kept {
		if m.Role == domain.RoleUser {
			return kept[i:]
		}
	}
	return kept
}
