package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// ExecutorDeps are the collaborators the executor writes and reads through.
// Search, Audit and Bus are optional.
type ExecutorDeps struct {
	Store  domain.CRMStore
	Stages *StageModel
	LLM    domain.LLMProvider
	Model  string
	Search *WebSearch
	Audit  domain.AuditLogger
	Bus    domain.EventBus
	Logger *slog.Logger
	// Now returns the current time; time.Now when nil.
	Now func() time.Time
}

// Executor performs validated tool calls. It is the only component that
// writes to the store.
type Executor struct {
	store  domain.CRMStore
	stages *StageModel
	llm    domain.LLMProvider
	model  string
	search *WebSearch
	audit  domain.AuditLogger
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor creates an executor from deps.
func NewExecutor(deps ExecutorDeps) *Executor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	stages := deps.Stages
	if stages == nil {
		stages = NewStageModel(deps.Store, deps.Logger)
	}
	return &Executor{
		store:  deps.Store,
		stages: stages,
		llm:    deps.LLM,
		model:  deps.Model,
		search: deps.Search,
		audit:  deps.Audit,
		bus:    deps.Bus,
		logger: deps.Logger,
		now:    now,
	}
}

// Execute runs one validated tool call on behalf of caller.
func (e *Executor) Execute(ctx context.Context, args Args, caller domain.Caller) domain.ToolResult {
	var result domain.ToolResult
	switch a := args.(type) {
	case SearchContactsArgs:
		result = run(ctx, e.logger, a, e.searchContacts)
	case SearchNotesArgs:
		result = run(ctx, e.logger, a, e.searchNotes)
	case CreateContactArgs:
		result = run(ctx, e.logger, a, withCaller(caller, e.createContact))
	case AddNoteArgs:
		result = run(ctx, e.logger, a, withCaller(caller, e.addNote))
	case CreateDealArgs:
		result = run(ctx, e.logger, a, withCaller(caller, e.createDeal))
	case UpdateDealStageArgs:
		result = run(ctx, e.logger, a, e.updateDealStage)
	case PipelineSummaryArgs:
		result = run(ctx, e.logger, a, e.pipelineSummary)
	case SuggestFollowupEmailArgs:
		result = run(ctx, e.logger, a, e.suggestFollowupEmail)
	case WebSearchArgs:
		result = run(ctx, e.logger, a, e.webSearch)
	default:
		return domain.Failure(fmt.Sprintf("unknown tool %T", args))
	}
	e.auditCall(ctx, args, caller, result)
	return result
}

// withCaller adapts a handler that needs the caller for ownership fields.
func withCaller[A Args](caller domain.Caller, h func(context.Context, A, domain.Caller) (domain.ToolResult, error)) handler[A] {
	return func(ctx context.Context, _ trace.Span, a A) (domain.ToolResult, error) {
		return h(ctx, a, caller)
	}
}

func (e *Executor) auditCall(ctx context.Context, args Args, caller domain.Caller, result domain.ToolResult) {
	if e.audit == nil {
		return
	}
	name := args.Tool()
	typ := domain.AuditToolExec
	switch {
	case name.IsWrite():
		typ = domain.AuditCRMWrite
	case name == domain.ToolWebSearch:
		typ = domain.AuditWebSearch
	}
	detail := map[string]string{"tool": string(name)}
	if result.IsError() {
		detail["error"] = result.Reason
	}
	if err := e.audit.Log(ctx, domain.AuditEvent{
		Timestamp: e.now(),
		Type:      typ,
		Detail:    detail,
		Actor:     caller.ID,
		Resource:  string(name),
		Action:    "execute",
		Outcome:   string(result.Outcome),
	}); err != nil {
		e.logger.Warn("audit log write failed", "error", err, "tool", name)
	}
}

func (e *Executor) publish(ctx context.Context, typ domain.EventType, payload any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("marshal event payload", "error", err, "event", typ)
		return
	}
	e.bus.Publish(ctx, domain.Event{
		Type:      typ,
		Timestamp: e.now(),
		RequestID: domain.RequestIDFromContext(ctx),
		Payload:   data,
	})
}
