package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role:       RoleAssistant,
		Content:    "[ASK] Which company?",
		Annotation: &Annotation{Kind: AnnotationAsk, Body: "Which company?"},
		Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Role != msg.Role || got.Content != msg.Content {
		t.Errorf("got %+v, want %+v", got, msg)
	}
	if got.Annotation == nil || got.Annotation.Kind != AnnotationAsk {
		t.Errorf("annotation lost: %+v", got.Annotation)
	}
	if !got.IsAsk() {
		t.Error("IsAsk() = false, want true")
	}
}

func TestMessageWithToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "call-1", Name: "search_contacts", Arguments: json.RawMessage(`{"query":"jane"}`)},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "search_contacts", got.ToolCalls[0].Name)
	assert.False(t, got.IsAsk())
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, u)
}

func TestToolResultContent(t *testing.T) {
	tests := []struct {
		name   string
		result ToolResult
		want   string
	}{
		{"success", Success(map[string]int{"id": 7}), `{"status":"success","data":{"id":7}}`},
		{"warning", SuccessWithWarning(map[string]int{"id": 7}, "note not saved"),
			`{"status":"success","data":{"id":7},"warning":"note not saved"}`},
		{"needs info", NeedsInfo("Which deal?"), `{"status":"needs_info","prompt":"Which deal?"}`},
		{"error", Failure("boom"), `{"status":"error","error":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, tt.result.Content())
		})
	}
}

func TestNeedsInfoPromptRoundTripsExactly(t *testing.T) {
	prompt := `To create a contact I need a name <or> organization & an email — "quoted"`
	got, err := ParseToolResult(NeedsInfo(prompt).Content())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsInfo, got.Outcome)
	assert.Equal(t, prompt, got.Prompt)
	assert.NotContains(t, NeedsInfo(prompt).Content(), `<`)
}

func TestToolNameIsWrite(t *testing.T) {
	assert.True(t, ToolCreateDeal.IsWrite())
	assert.True(t, ToolAddNote.IsWrite())
	assert.False(t, ToolPipelineSummary.IsWrite())
	assert.False(t, ToolWebSearch.IsWrite())
}

func TestParseDealKind(t *testing.T) {
	k, ok := ParseDealKind(" Procurement ")
	assert.True(t, ok)
	assert.Equal(t, DealKindProcurement, k)
	assert.True(t, k.UsesCost())

	_, ok = ParseDealKind("")
	assert.False(t, ok)
	_, ok = ParseDealKind("barter")
	assert.False(t, ok)
	assert.False(t, DealKindSales.UsesCost())
}
