package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

const noteColumns = "id, entity_type, entity_id, text, author_id, created_at"

// SearchNotes matches query against note text, optionally within one entity.
func (s *SQLiteStore) SearchNotes(ctx context.Context, query string, filter domain.NoteFilter, limit int) (out []domain.Note, err error) {
	ctx, end := startSpan(ctx, "search_notes")
	defer func() { end(err) }()

	var sb strings.Builder
	sb.WriteString("SELECT " + noteColumns + ` FROM notes WHERE text LIKE ? ESCAPE '\'`)
	args := []any{likePattern(query)}
	if filter.EntityType != "" {
		sb.WriteString(" AND entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.EntityID > 0 {
		sb.WriteString(" AND entity_id = ?")
		args = append(args, filter.EntityID)
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ?")
	args = append(args, limit)

	out, err = s.queryNotes(ctx, sb.String(), args...)
	if err != nil {
		return nil, storeErr("Store.SearchNotes", err)
	}
	return out, nil
}

// AddNote inserts n. The referenced entity must exist.
func (s *SQLiteStore) AddNote(ctx context.Context, n domain.Note) (_ domain.Note, err error) {
	ctx, end := startSpan(ctx, "add_note")
	defer func() { end(err) }()

	if !slices.Contains(domain.NoteTargets, n.EntityType) {
		return domain.Note{}, domain.NewDomainError("Store.AddNote", domain.ErrInvalidInput,
			fmt.Sprintf("notes cannot reference %q", n.EntityType))
	}
	if err := s.mustExist(ctx, n.EntityType, n.EntityID); err != nil {
		return domain.Note{}, err
	}

	var created string
	n.CreatedAt, created = s.stamp(n.CreatedAt)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO notes (entity_type, entity_id, text, author_id, created_at) VALUES (?, ?, ?, ?, ?)",
		string(n.EntityType), n.EntityID, n.Text, n.AuthorID, created,
	)
	if err != nil {
		return domain.Note{}, storeErr("Store.AddNote", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Note{}, storeErr("Store.AddNote", err)
	}
	return n, nil
}

// RecentNotes returns up to limit notes for one entity, newest first.
func (s *SQLiteStore) RecentNotes(ctx context.Context, entity domain.EntityType, id int64, limit int) (out []domain.Note, err error) {
	ctx, end := startSpan(ctx, "recent_notes")
	defer func() { end(err) }()

	out, err = s.queryNotes(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE entity_type = ? AND entity_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		string(entity), id, limit,
	)
	if err != nil {
		return nil, storeErr("Store.RecentNotes", err)
	}
	return out, nil
}

func (s *SQLiteStore) queryNotes(ctx context.Context, query string, args ...any) ([]domain.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Note{}
	for rows.Next() {
		var n domain.Note
		var kind, created string
		if err := rows.Scan(&n.ID, &kind, &n.EntityID, &n.Text, &n.AuthorID, &created); err != nil {
			return nil, err
		}
		n.EntityType = domain.EntityType(kind)
		n.CreatedAt = parseTime(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) mustExist(ctx context.Context, entity domain.EntityType, id int64) error {
	table := map[domain.EntityType]string{
		domain.EntityContact: "contacts",
		domain.EntityDeal:    "deals",
		domain.EntityCompany: "companies",
	}[entity]
	if table == "" {
		return domain.NewDomainError("Store.Lookup", domain.ErrInvalidInput, string(entity))
	}
	var found int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id = ?", id).Scan(&found)
	if errors.Is(err, errNoRows) {
		return domain.NewSubSystemError(string(entity), "Store.Lookup", domain.ErrNotFound,
			fmt.Sprintf("%s %d does not exist", entity, id))
	}
	if err != nil {
		return storeErr("Store.Lookup", err)
	}
	return nil
}
