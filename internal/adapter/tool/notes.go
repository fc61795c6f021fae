package tool

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

// companyNoteGuidance is returned instead of writing a note on a company.
const companyNoteGuidance = "Notes cannot be attached to a company directly. " +
	"Attach the note to one of the company's contacts or deals instead: " +
	"search for the contact, or use the deal id."

func (e *Executor) searchNotes(ctx context.Context, span trace.Span, a SearchNotesArgs) (domain.ToolResult, error) {
	limit := maxNoteResults
	if a.Limit != nil {
		limit = min(*a.Limit, maxNoteResults)
	}
	filter := domain.NoteFilter{EntityType: a.EntityType}
	if a.EntityID != nil {
		filter.EntityID = *a.EntityID
	}
	span.SetAttributes(tracer.StringAttr("tool.query", a.Query))

	notes, err := e.store.SearchNotes(ctx, a.Query, filter, limit)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("search notes: %w", err)
	}
	span.SetAttributes(tracer.IntAttr("tool.results", len(notes)))
	return domain.Success(map[string]any{"notes": notes}), nil
}

func (e *Executor) addNote(ctx context.Context, a AddNoteArgs, caller domain.Caller) (domain.ToolResult, error) {
	if a.EntityType == domain.EntityCompany {
		return domain.Success(map[string]string{"guidance": companyNoteGuidance}), nil
	}
	note, err := e.store.AddNote(ctx, domain.Note{
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Text:       a.Text,
		AuthorID:   caller.ID,
	})
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("add note to %s %d: %w", a.EntityType, a.EntityID, err)
	}
	e.publish(ctx, domain.EventNoteAdded, note)
	return domain.Success(map[string]any{"note": note}), nil
}
