package tool

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

// transientHint is appended to error results the model may retry.
const transientHint = " (transient error, may succeed on retry)"

// handler runs one tool. A returned error becomes an error result; handlers
// return NeedsInfo or guidance results directly.
type handler[A Args] func(ctx context.Context, span trace.Span, args A) (domain.ToolResult, error)

// run is the standard tool pipeline: start span -> run handler -> map errors.
func run[A Args](ctx context.Context, logger *slog.Logger, args A, h handler[A]) domain.ToolResult {
	name := string(args.Tool())
	ctx, span := tracer.StartSpan(ctx, "tool."+name,
		trace.WithAttributes(tracer.StringAttr("tool.name", name)),
	)
	defer span.End()

	result, err := h(ctx, span, args)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn("tool failed", "tool", name, "error", err, "code", domain.ErrorCodeOf(err))
		return errorResult(err)
	}

	span.SetAttributes(tracer.StringAttr("tool.outcome", string(result.Outcome)))
	if result.IsError() {
		tracer.RecordError(span, &toolFailure{reason: result.Reason})
	} else {
		tracer.SetOK(span)
	}
	return result
}

// errorResult converts a dependency error into an error result, tagging
// transient failures.
func errorResult(err error) domain.ToolResult {
	reason := err.Error()
	if classifyToolError(err) {
		reason += transientHint
	}
	return domain.Failure(reason)
}

type toolFailure struct{ reason string }

func (f *toolFailure) Error() string { return f.reason }
