package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

type fakeConverse struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.output, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5)},
	}
}

func TestBedrock_Chat(t *testing.T) {
	fake := &fakeConverse{output: textOutput("Hello from Bedrock")}
	p := newBedrockProvider("bedrock", "anthropic.claude-3-5-sonnet", fake, newTestLogger())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a CRM assistant."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello from Bedrock", resp.Message.Content)
	assert.Equal(t, domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, resp.Usage)

	require.NotNil(t, fake.input)
	assert.Equal(t, "anthropic.claude-3-5-sonnet", aws.ToString(fake.input.ModelId))
	assert.Len(t, fake.input.System, 1)
	assert.Len(t, fake.input.Messages, 1)
	assert.Equal(t, int32(defaultBedrockMaxTokens), aws.ToInt32(fake.input.InferenceConfig.MaxTokens))
	assert.Nil(t, fake.input.ToolConfig)
}

func TestBedrock_ToolRoundTrip(t *testing.T) {
	fake := &fakeConverse{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String("tu_1"),
				Name:      aws.String("search_contacts"),
				Input:     document.NewLazyDocument(map[string]any{"query": "jane"}),
			}}},
		}},
	}}
	p := newBedrockProvider("bedrock", "m", fake, newTestLogger())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "find jane"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "tu_0", Name: "search_notes", Arguments: json.RawMessage(`{"query":"x"}`)}}},
			{Role: domain.RoleTool, ToolCallID: "tu_0", Content: `{"status":"success"}`},
		},
		Tools: []domain.ToolSchema{{Name: "search_contacts", Description: "d", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"jane"}`, string(resp.Message.ToolCalls[0].Arguments))

	require.Len(t, fake.input.Messages, 3)
	result, ok := fake.input.Messages[2].Content[0].(*types.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, "tu_0", aws.ToString(result.Value.ToolUseId))
	assert.Equal(t, types.ConversationRoleUser, fake.input.Messages[2].Role)
	require.NotNil(t, fake.input.ToolConfig)
	assert.Len(t, fake.input.ToolConfig.Tools, 1)
}

type fakeAPIError struct{ code, msg string }

func (e *fakeAPIError) Error() string                 { return e.msg }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.msg }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestBedrock_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&fakeAPIError{"ThrottlingException", "slow down"}, domain.ErrRateLimit},
		{&fakeAPIError{"AccessDeniedException", "no"}, domain.ErrAuthInvalid},
		{&fakeAPIError{"ValidationException", "input is too long"}, domain.ErrContextOverflow},
		{&fakeAPIError{"ServiceUnavailableException", "down"}, domain.ErrProviderError},
	}
	for _, tt := range tests {
		fake := &fakeConverse{err: tt.err}
		_, err := newBedrockProvider("b", "m", fake, newTestLogger()).Chat(context.Background(), domain.ChatRequest{})
		assert.ErrorIs(t, err, tt.want, tt.err.Error())
	}

	plain := errors.New("socket closed")
	_, err := newBedrockProvider("b", "m", &fakeConverse{err: plain}, newTestLogger()).Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, plain)
}

func TestFromConverseOutput_JoinsText(t *testing.T) {
	out := &bedrockruntime.ConverseOutput{Output: &types.ConverseOutputMemberMessage{Value: types.Message{
		Content: []types.ContentBlock{
			&types.ContentBlockMemberText{Value: "one"},
			&types.ContentBlockMemberText{Value: "two"},
		},
	}}}
	now := time.Unix(100, 0)
	resp := fromConverseOutput(out, "m", now)
	assert.Equal(t, "one\ntwo", resp.Message.Content)
	assert.Equal(t, now, resp.CreatedAt)
}
