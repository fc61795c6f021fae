package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// --- Fakes ---

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type llmStep func(req domain.ChatRequest) (*domain.ChatResponse, error)

// scriptedLLM plays steps in order and repeats the last one when they run out.
type scriptedLLM struct {
	mu       sync.Mutex
	steps    []llmStep
	requests []domain.ChatRequest
}

func (m *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Messages = append([]domain.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	step := m.steps[min(len(m.requests), len(m.steps))-1]
	return step(req)
}

func (m *scriptedLLM) Name() string { return "scripted" }

func (m *scriptedLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func textReply(content string) llmStep {
	return func(domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{
			Model:   "test-model",
			Message: domain.Message{Role: domain.RoleAssistant, Content: content},
			Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}
}

func toolReply(calls ...domain.ToolCall) llmStep {
	return func(domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{
			Model:   "test-model",
			Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls},
			Usage:   domain.Usage{TotalTokens: 7},
		}, nil
	}
}

func failReply(err error) llmStep {
	return func(domain.ChatRequest) (*domain.ChatResponse, error) { return nil, err }
}

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// fakeTools records dispatched calls and answers with result.
type fakeTools struct {
	mu      sync.Mutex
	schemas []domain.ToolSchema
	calls   []domain.ToolCall
	callers []domain.Caller
	result  func(domain.ToolCall) domain.ToolResult
}

func (f *fakeTools) Schemas() []domain.ToolSchema { return f.schemas }

func (f *fakeTools) Dispatch(_ context.Context, c domain.ToolCall, caller domain.Caller) domain.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	f.callers = append(f.callers, caller)
	if f.result == nil {
		return domain.Success(map[string]int{"count": 0})
	}
	return f.result(c)
}

func (f *fakeTools) dispatched() []domain.ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ToolCall(nil), f.calls...)
}

type fixedVocabulary map[domain.DealKind][]string

func (v fixedVocabulary) Vocabulary(context.Context) map[domain.DealKind][]string { return v }

// recordingBus keeps published events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Log(_ context.Context, e domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}
func (a *recordingAudit) Close() error { return nil }

var testCaller = domain.Caller{ID: "user-1", Name: "Sam"}

func newTestAssistant(llm domain.LLMProvider, tools domain.ToolDispatcher) *Assistant {
	return NewAssistant(AssistantDeps{
		LLM:        llm,
		Tools:      tools,
		Context:    NewContextBuilder("test-model", 512, 0.2, 0),
		Classifier: NewErrorClassifier(),
		Retry:      RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Logger:     newTestLogger(),
	})
}

func userTurn(content string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: content}}
}
