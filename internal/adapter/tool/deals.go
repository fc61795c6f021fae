package tool

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

func (e *Executor) createDeal(ctx context.Context, a CreateDealArgs, caller domain.Caller) (domain.ToolResult, error) {
	kind := a.Kind
	if kind == "" {
		kind = domain.DealKindSales
	}
	stage := a.Stage
	if stage == "" {
		stage = e.stages.DefaultStage(ctx, kind)
	}
	closing := a.ExpectedClosingDate
	if closing == "" {
		closing = e.now().In(time.Local).Format(time.DateOnly)
	}

	deal := domain.Deal{
		Name:                a.Title,
		CompanyID:           a.CompanyID,
		ContactID:           a.ContactID,
		Kind:                kind,
		Stage:               stage,
		ExpectedClosingDate: closing,
		OwnerID:             caller.ID,
	}
	// The classification decides the monetary column, whichever field carried the value.
	value := a.Amount
	if value == nil {
		value = a.Cost
	}
	if kind.UsesCost() {
		if a.Cost != nil {
			value = a.Cost
		}
		deal.Cost = value
		deal.VendorCompanyID = a.VendorCompanyID
	} else {
		deal.Amount = value
	}

	created, err := e.store.CreateDeal(ctx, deal)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("create deal: %w", err)
	}
	e.publish(ctx, domain.EventDealCreated, created)
	return domain.Success(map[string]any{"deal": created}), nil
}

func (e *Executor) updateDealStage(ctx context.Context, span trace.Span, a UpdateDealStageArgs) (domain.ToolResult, error) {
	span.SetAttributes(tracer.Int64Attr("deal.id", a.DealID), tracer.StringAttr("deal.stage", a.Stage))

	deal, err := e.store.UpdateDealStage(ctx, a.DealID, a.Stage)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("update stage of deal %d: %w", a.DealID, err)
	}
	e.publish(ctx, domain.EventDealStaged, deal)
	return domain.Success(map[string]any{"deal": deal}), nil
}
