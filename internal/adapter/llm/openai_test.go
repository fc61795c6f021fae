package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/config"
)

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIProvider(config.ProviderConfig{Name: "openai", APIKey: "test-key", BaseURL: server.URL + "/"}, newTestLogger())
}

func TestOpenAIProvider_Chat(t *testing.T) {
	var got openaiRequest
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(openaiResponse{
			ID:      "chatcmpl-1",
			Model:   "gpt-4o-mini",
			Created: 1700000000,
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "Hi there"}}},
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
		})
	})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Model, "default model")
	assert.Empty(t, got.Tools)
	assert.Empty(t, got.ToolChoice)
	assert.Equal(t, "Hi there", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
}

func TestOpenAIProvider_ChatToolCalls(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"x","model":"m","choices":[{"message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_contacts","arguments":"{\"query\":\"jane\"}"}},
			{"id":"call_2","type":"function","function":{"name":"add_note","arguments":"{}"}}]}}]}`)
	})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{Model: "m"})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 2)
	assert.Equal(t, domain.ToolCall{ID: "call_1", Name: "search_contacts", Arguments: json.RawMessage(`{"query":"jane"}`)}, resp.Message.ToolCalls[0])
	assert.Empty(t, resp.Message.Content)
}

func TestOpenAIProvider_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusServiceUnavailable, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"upstream says no","type":"x"}}`)
			})
			_, err := p.Chat(context.Background(), domain.ChatRequest{})
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"x","choices":[]}`)
	})
	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestOpenAIProvider_InvalidJSON(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})
	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestOpenAIProvider_TransportErrorIsProviderError(t *testing.T) {
	p := NewOpenAIProvider(config.ProviderConfig{BaseURL: "http://llm.invalid"}, newTestLogger())
	p.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})}
	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, "openai", p.Name())
}

func TestOpenAIProvider_CancelledContext(t *testing.T) {
	p := NewOpenAIProvider(config.ProviderConfig{BaseURL: "http://llm.invalid"}, newTestLogger())
	p.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrProviderError)
}

func TestToOpenAIRequest(t *testing.T) {
	req := toOpenAIRequest(domain.ChatRequest{
		Model:       "gpt-4o-mini",
		MaxTokens:   600,
		Temperature: 0.2,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "find jane"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "search_contacts"}}},
			{Role: domain.RoleTool, ToolCallID: "c1", Name: "search_contacts", Content: `{"status":"success"}`},
		},
		Tools: []domain.ToolSchema{{Name: "search_contacts", Description: "d", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})

	require.Len(t, req.Messages, 4)
	assert.Equal(t, "c1", req.Messages[3].ToolCallID)
	require.Len(t, req.Messages[2].ToolCalls, 1)
	assert.Equal(t, "{}", req.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "function", req.Messages[2].ToolCalls[0].Type)
	assert.Empty(t, req.Messages[1].ToolCallID)
	assert.Equal(t, "auto", req.ToolChoice)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "search_contacts", req.Tools[0].Function.Name)
	assert.Equal(t, 600, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
}

func TestMapHTTPError(t *testing.T) {
	err := mapHTTPError(http.StatusBadRequest, []byte("plain body"))
	assert.Equal(t, "API error 400: plain body", err.Error())
	assert.False(t, errors.Is(err, domain.ErrProviderError))

	err = mapHTTPError(http.StatusForbidden, []byte(`{"error":{"message":"bad key"}}`))
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Contains(t, err.Error(), "API error 403: bad key")
}
