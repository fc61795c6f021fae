package store

import (
	"context"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// StageSet returns the stages of one classification ordered by position.
func (s *SQLiteStore) StageSet(ctx context.Context, kind domain.DealKind) (_ []domain.StageEntry, err error) {
	ctx, end := startSpan(ctx, "stage_set")
	defer func() { end(err) }()

	return s.queryStages(ctx,
		"SELECT deal_kind, stage, position FROM deal_stage_sets WHERE deal_kind = ? ORDER BY position",
		string(kind),
	)
}

// AllStageSets returns every configured stage ordered by classification then position.
func (s *SQLiteStore) AllStageSets(ctx context.Context) (_ []domain.StageEntry, err error) {
	ctx, end := startSpan(ctx, "all_stage_sets")
	defer func() { end(err) }()

	return s.queryStages(ctx,
		"SELECT deal_kind, stage, position FROM deal_stage_sets ORDER BY deal_kind, position")
}

// ReplaceStageSet swaps the stage list of one classification atomically.
func (s *SQLiteStore) ReplaceStageSet(ctx context.Context, kind domain.DealKind, stages []string) (err error) {
	ctx, end := startSpan(ctx, "replace_stage_set")
	defer func() { end(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("Store.ReplaceStageSet", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM deal_stage_sets WHERE deal_kind = ?", string(kind)); err != nil {
		return storeErr("Store.ReplaceStageSet", err)
	}
	for pos, stage := range stages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO deal_stage_sets (deal_kind, stage, position) VALUES (?, ?, ?)",
			string(kind), stage, pos,
		); err != nil {
			return storeErr("Store.ReplaceStageSet", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("Store.ReplaceStageSet", err)
	}
	return nil
}

func (s *SQLiteStore) queryStages(ctx context.Context, query string, args ...any) ([]domain.StageEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("Store.StageSet", err)
	}
	defer rows.Close()

	out := []domain.StageEntry{}
	for rows.Next() {
		var e domain.StageEntry
		var kind string
		if err := rows.Scan(&kind, &e.Stage, &e.Position); err != nil {
			return nil, storeErr("Store.StageSet", err)
		}
		e.Kind = domain.DealKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
