package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

// MaxToolIterations bounds the tool-executing turns of one request.
const MaxToolIterations = 3

// FallbackReply is returned when the tool budget runs out before the model
// answers in text.
const FallbackReply = "Let’s continue — what should I do next?"

// AssistantDeps holds the collaborators of an Assistant. Bus and Audit are
// optional; Classifier nil disables retries.
type AssistantDeps struct {
	LLM        domain.LLMProvider
	Tools      domain.ToolDispatcher
	Stages     domain.StageVocabulary
	Context    *ContextBuilder
	Classifier *ErrorClassifier
	Retry      RetryPolicy
	Bus        domain.EventBus
	Audit      domain.AuditLogger
	Logger     *slog.Logger
	Now        func() time.Time
}

// Assistant runs the bounded model/tool loop for one conversation turn.
type Assistant struct {
	deps AssistantDeps
}

// NewAssistant creates an assistant.
func NewAssistant(deps AssistantDeps) *Assistant {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Context == nil {
		deps.Context = NewContextBuilder("", 0, 0, 0)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Assistant{deps: deps}
}

// Respond produces the next assistant message for history. At most one tool
// call is acted on per model reply and at most MaxToolIterations tools run
// before FallbackReply is returned. The returned message is annotated. An
// error means the model could not be reached.
func (a *Assistant) Respond(ctx context.Context, history []domain.Message, caller domain.Caller, cc ClientContext) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "assistant.respond",
		trace.WithAttributes(tracer.StringAttr("caller.id", caller.ID)),
	)
	defer span.End()
	ctx = domain.ContextWithCaller(ctx, caller)
	logger := a.deps.Logger

	if c := ResolveConfirmation(history); c.State != ConfirmationNone {
		span.SetAttributes(tracer.StringAttr("confirmation.state", string(c.State)))
		logger.Debug("pending confirmation", "state", c.State)
	}
	a.publish(ctx, domain.EventMessageReceived, map[string]int{"messages": len(history)})

	tools := a.deps.Tools.Schemas()
	system := SystemPrompt(a.vocabulary(ctx), offers(tools, domain.ToolWebSearch), cc)
	req := a.deps.Context.Build(system, history, tools)

	var usage domain.Usage
	for executed := 0; ; executed++ {
		if executed == MaxToolIterations {
			logger.Info("tool iteration budget exhausted", "iterations", executed, "tokens", usage.TotalTokens)
			span.AddEvent("assistant.fallback")
			tracer.SetOK(span)
			return a.reply(ctx, FallbackReply), nil
		}
		span.AddEvent("assistant.iteration", trace.WithAttributes(tracer.IntAttr("iteration", executed)))

		a.publish(ctx, domain.EventLLMCallStarted, nil)
		resp, err := a.callLLMWithRetry(ctx, req)
		if err != nil {
			a.publish(ctx, domain.EventAssistantError, map[string]string{"error": err.Error()})
			tracer.RecordError(span, err)
			logger.Error("model call failed", "error", err, "code", domain.ErrorCodeOf(err))
			return domain.Message{}, domain.WrapOp("Assistant.Respond", err)
		}
		a.publish(ctx, domain.EventLLMCallCompleted, nil)
		usage.Add(resp.Usage)
		a.auditLLMCall(ctx, resp)

		msg := resp.Message
		logger.Debug("model response", "iteration", executed, "tool_calls", len(msg.ToolCalls), "tokens", resp.Usage.TotalTokens)
		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return a.reply(ctx, msg.Content), nil
		}

		call := msg.ToolCalls[0]
		if len(msg.ToolCalls) > 1 {
			logger.Debug("ignoring extra tool calls", "acted_on", call.Name, "dropped", len(msg.ToolCalls)-1)
		}
		if call.ID == "" {
			call.ID = "call_" + strconv.Itoa(executed)
		}
		result := a.executeTool(ctx, call, caller)

		req.Messages = append(req.Messages,
			domain.Message{
				Role:      domain.RoleAssistant,
				Content:   msg.Content,
				ToolCalls: []domain.ToolCall{call},
				Timestamp: a.deps.Now(),
			},
			domain.Message{
				Role:       domain.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    result.Content(),
				Timestamp:  a.deps.Now(),
			},
		)
	}
}

func (a *Assistant) reply(ctx context.Context, content string) domain.Message {
	msg := annotate(domain.Message{
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: a.deps.Now(),
	})
	a.publish(ctx, domain.EventMessageSent, map[string]string{"annotation": string(msg.Annotation.Kind)})
	return msg
}

func (a *Assistant) vocabulary(ctx context.Context) map[domain.DealKind][]string {
	if a.deps.Stages == nil {
		return nil
	}
	return a.deps.Stages.Vocabulary(ctx)
}

func offers(tools []domain.ToolSchema, name domain.ToolName) bool {
	for _, t := range tools {
		if t.Name == string(name) {
			return true
		}
	}
	return false
}

// executeTool dispatches one call. Failures come back as error results.
func (a *Assistant) executeTool(ctx context.Context, call domain.ToolCall, caller domain.Caller) domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "assistant.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	a.publish(ctx, domain.EventToolCallStarted, map[string]string{"tool": call.Name})
	result := a.deps.Tools.Dispatch(ctx, call, caller)
	a.publish(ctx, domain.EventToolCallCompleted, map[string]string{
		"tool":    call.Name,
		"outcome": string(result.Outcome),
	})

	span.SetAttributes(tracer.StringAttr("tool.outcome", string(result.Outcome)))
	if result.IsError() {
		tracer.RecordError(span, fmt.Errorf("%w: %s", domain.ErrToolFailure, result.Reason))
	} else {
		tracer.SetOK(span)
	}
	return result
}

// callLLMWithRetry calls the model, repeating retryable failures with
// exponential backoff up to Retry.MaxRetries times.
func (a *Assistant) callLLMWithRetry(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	maxAttempts := 1
	if a.deps.Classifier != nil {
		maxAttempts += max(a.deps.Retry.MaxRetries, 0)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "assistant.llm_call",
			trace.WithAttributes(tracer.IntAttr("attempt", attempt)),
		)
		resp, err := a.deps.LLM.Chat(llmCtx, req)
		tracer.Finish(llmSpan, err)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if a.deps.Classifier == nil {
			return nil, err
		}
		if c := a.deps.Classifier.Classify(err); !c.Retryable() {
			return nil, err
		}
		if attempt < maxAttempts-1 {
			a.deps.Logger.Info("retrying model call after error", "attempt", attempt+1, "error", err)
			if werr := a.deps.Retry.wait(ctx, attempt); werr != nil {
				return nil, werr
			}
		}
	}
	return nil, lastErr
}

func (a *Assistant) auditLLMCall(ctx context.Context, resp *domain.ChatResponse) {
	if a.deps.Audit == nil {
		return
	}
	err := a.deps.Audit.Log(ctx, domain.AuditEvent{
		Type: domain.AuditLLMCall,
		Detail: map[string]string{
			"provider":          a.deps.LLM.Name(),
			"model":             resp.Model,
			"prompt_tokens":     strconv.Itoa(resp.Usage.PromptTokens),
			"completion_tokens": strconv.Itoa(resp.Usage.CompletionTokens),
			"total_tokens":      strconv.Itoa(resp.Usage.TotalTokens),
		},
		Action:  "chat",
		Outcome: "success",
	})
	if err != nil {
		a.deps.Logger.Warn("audit log write failed", "error", err)
	}
}

func (a *Assistant) publish(ctx context.Context, typ domain.EventType, payload any) {
	if a.deps.Bus == nil {
		return
	}
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			a.deps.Logger.Warn("marshal event payload", "error", err, "event", typ)
			return
		}
	}
	a.deps.Bus.Publish(ctx, domain.Event{Type: typ, Payload: data})
}
