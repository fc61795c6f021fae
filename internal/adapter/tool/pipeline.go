package tool

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

// monthWindow returns [first of month, first of next month) in loc for the
// month containing t.
func monthWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

func (e *Executor) pipelineSummary(ctx context.Context, span trace.Span, a PipelineSummaryArgs) (domain.ToolResult, error) {
	ref := e.now()
	if a.Month != "" {
		m, err := time.ParseInLocation("2006-01", a.Month, time.Local)
		if err != nil {
			return domain.NeedsInfo("Which month should I summarize? Please use YYYY-MM."), nil
		}
		ref = m
	}
	from, to := monthWindow(ref, time.Local)
	span.SetAttributes(tracer.StringAttr("pipeline.from", from.Format(time.DateOnly)))

	deals, err := e.store.DealsCreatedBetween(ctx, from, to)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("read deals for pipeline: %w", err)
	}
	return domain.Success(Aggregate(deals, from, to)), nil
}

// Aggregate buckets deals by classification. Deals without a recognized
// classification land in the unknown bucket.
func Aggregate(deals []domain.Deal, from, to time.Time) domain.PipelineSummary {
	out := domain.PipelineSummary{From: from, To: to, Buckets: map[string]domain.PipelineBucket{}}
	for _, d := range deals {
		key := domain.UnknownKind
		if kind, ok := domain.ParseDealKind(string(d.Kind)); ok {
			key = string(kind)
		}
		b := out.Buckets[key]
		b.Count++
		if d.Amount != nil {
			b.TotalAmount += *d.Amount
		}
		if d.Cost != nil {
			b.TotalCost += *d.Cost
		}
		out.Buckets[key] = b
	}
	return out
}
