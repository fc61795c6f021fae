package tool

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Dispatcher joins the validator and the executor behind
// domain.ToolDispatcher.
type Dispatcher struct {
	registry  *Registry
	validator *Validator
	executor  *Executor
	logger    *slog.Logger
}

var _ domain.ToolDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the tools in r.
func NewDispatcher(r *Registry, exec *Executor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: r, validator: NewValidator(r), executor: exec, logger: logger}
}

// Schemas returns the registered tool schemas.
func (d *Dispatcher) Schemas() []domain.ToolSchema { return d.registry.Schemas() }

// Dispatch validates call and, when its arguments are usable, executes it.
func (d *Dispatcher) Dispatch(ctx context.Context, call domain.ToolCall, caller domain.Caller) domain.ToolResult {
	args, err := d.validator.Validate(call.Name, call.Arguments)
	if err != nil {
		if ae, ok := IsArgumentError(err); ok {
			d.logger.Debug("tool arguments incomplete", "tool", call.Name, "prompt", ae.Prompt)
			return domain.NeedsInfo(ae.Prompt)
		}
		if errors.Is(err, domain.ErrToolNotFound) {
			d.logger.Warn("model called unknown tool", "tool", call.Name)
			return domain.Failure("unknown tool " + call.Name)
		}
		return domain.Failure(err.Error())
	}
	return d.executor.Execute(ctx, args, caller)
}
