package tool

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

const companyMatchLimit = 10

type createContactResult struct {
	Contact        domain.Contact  `json:"contact"`
	Company        *domain.Company `json:"company,omitempty"`
	CompanyCreated bool            `json:"company_created,omitempty"`
	Note           *domain.Note    `json:"note,omitempty"`
}

func (e *Executor) searchContacts(ctx context.Context, span trace.Span, a SearchContactsArgs) (domain.ToolResult, error) {
	limit := maxContactResults
	if a.Limit != nil {
		limit = min(*a.Limit, maxContactResults)
	}
	span.SetAttributes(tracer.StringAttr("tool.query", a.Query))

	contacts, err := e.store.SearchContacts(ctx, a.Query, limit)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("search contacts: %w", err)
	}
	span.SetAttributes(tracer.IntAttr("tool.results", len(contacts)))
	return domain.Success(map[string]any{"contacts": contacts}), nil
}

func (e *Executor) createContact(ctx context.Context, a CreateContactArgs, caller domain.Caller) (domain.ToolResult, error) {
	var out createContactResult

	switch {
	case a.CompanyID != nil:
		id := *a.CompanyID
		out.Contact.CompanyID = &id
	case a.CompanyName != "":
		company, created, err := e.resolveCompany(ctx, a.CompanyName, caller)
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("resolve company %q: %w", a.CompanyName, err)
		}
		out.Company = &company
		out.CompanyCreated = created
		out.Contact.CompanyID = &company.ID
	}

	contact, err := e.store.CreateContact(ctx, domain.Contact{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Phone:     a.Phone,
		CompanyID: out.Contact.CompanyID,
		OwnerID:   caller.ID,
	})
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("create contact: %w", err)
	}
	out.Contact = contact
	e.publish(ctx, domain.EventContactCreated, contact)

	if a.Note == "" {
		return domain.Success(out), nil
	}
	note, err := e.store.AddNote(ctx, domain.Note{
		EntityType: domain.EntityContact,
		EntityID:   contact.ID,
		Text:       a.Note,
		AuthorID:   caller.ID,
	})
	if err != nil {
		e.logger.Warn("contact created but note failed", "contact_id", contact.ID, "error", err)
		return domain.SuccessWithWarning(out,
			fmt.Sprintf("The contact was created but the note could not be saved: %v", err)), nil
	}
	out.Note = &note
	e.publish(ctx, domain.EventNoteAdded, note)
	return domain.Success(out), nil
}

// resolveCompany finds a company by name, preferring a case-insensitive exact
// match over a partial one, and creates it when nothing matches.
func (e *Executor) resolveCompany(ctx context.Context, name string, caller domain.Caller) (domain.Company, bool, error) {
	matches, err := e.store.FindCompanies(ctx, name, companyMatchLimit)
	if err != nil {
		return domain.Company{}, false, err
	}
	if c, ok := pickCompany(matches, name); ok {
		return c, false, nil
	}
	created, err := e.store.CreateCompany(ctx, domain.Company{Name: name, OwnerID: caller.ID})
	if err != nil {
		return domain.Company{}, false, err
	}
	return created, true, nil
}

func pickCompany(matches []domain.Company, name string) (domain.Company, bool) {
	want := strings.TrimSpace(name)
	for _, c := range matches {
		if strings.EqualFold(strings.TrimSpace(c.Name), want) {
			return c, true
		}
	}
	if len(matches) > 0 {
		return matches[0], true
	}
	return domain.Company{}, false
}
