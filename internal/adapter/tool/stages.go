package tool

import (
	"context"
	"log/slog"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Fallback entry stages used when a classification has no configured rows.
const (
	fallbackProcurementStage = "Sourcing"
	fallbackStage            = "Lead"
)

// StageModel reads deal stage sets from the store on every call. Stage sets
// are admin-editable so nothing is cached.
type StageModel struct {
	store  domain.StageStore
	logger *slog.Logger
}

// NewStageModel creates a stage model backed by store.
func NewStageModel(store domain.StageStore, logger *slog.Logger) *StageModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageModel{store: store, logger: logger}
}

// StagesFor returns the stage names of kind ordered by position.
func (m *StageModel) StagesFor(ctx context.Context, kind domain.DealKind) ([]string, error) {
	entries, err := m.store.StageSet(ctx, kind)
	if err != nil {
		return nil, domain.WrapOp("StageModel.StagesFor", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Stage)
	}
	return out, nil
}

// DefaultStage returns the position-0 stage of kind. When the store has no
// rows or fails, it falls back so deal creation never fails on configuration.
func (m *StageModel) DefaultStage(ctx context.Context, kind domain.DealKind) string {
	stages, err := m.StagesFor(ctx, kind)
	if err != nil {
		m.logger.Warn("stage lookup failed, using fallback", "deal_kind", kind, "error", err)
	}
	if len(stages) > 0 {
		return stages[0]
	}
	if kind == domain.DealKindProcurement {
		return fallbackProcurementStage
	}
	return fallbackStage
}

// Vocabulary returns the stage names of every classification, in
// classification order. Kinds with no rows or a failed lookup are omitted.
func (m *StageModel) Vocabulary(ctx context.Context) map[domain.DealKind][]string {
	out := make(map[domain.DealKind][]string, len(domain.DealKinds))
	for _, kind := range domain.DealKinds {
		stages, err := m.StagesFor(ctx, kind)
		if err != nil {
			m.logger.Warn("stage vocabulary lookup failed", "deal_kind", kind, "error", err)
			continue
		}
		if len(stages) > 0 {
			out[kind] = stages
		}
	}
	return out
}
