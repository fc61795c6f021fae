package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

const (
	maxContactResults = 25
	maxNoteResults    = 50
	maxWebResults     = 10
)

// ArgumentError reports arguments that cannot be acted on. Prompt is written
// for the user and is surfaced verbatim as a needs_info result.
type ArgumentError struct {
	Tool   domain.ToolName
	Prompt string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Prompt)
}

func (e *ArgumentError) Unwrap() error { return domain.ErrInvalidInput }

// Validator turns raw model-supplied arguments into typed Args. It never
// touches the store.
type Validator struct {
	registry *Registry
}

// NewValidator creates a validator for the tools in r.
func NewValidator(r *Registry) *Validator {
	return &Validator{registry: r}
}

// Validate checks raw against the rules of the named tool. The error is an
// *ArgumentError for fixable input or wraps domain.ErrToolNotFound.
func (v *Validator) Validate(name string, raw json.RawMessage) (Args, error) {
	tool := domain.ToolName(name)
	if !v.registry.Has(tool) {
		return nil, domain.NewDomainError("Validator.Validate", domain.ErrToolNotFound, name)
	}

	f, err := decodeFields(raw)
	if err != nil {
		return nil, &ArgumentError{Tool: tool, Prompt: fmt.Sprintf(
			"I could not read the details for %s. Please restate the request.", name)}
	}

	args, prompt := parseArgs(tool, f)
	if prompt != "" {
		return nil, &ArgumentError{Tool: tool, Prompt: prompt}
	}

	if err := v.registry.checkSchema(tool, args); err != nil {
		return nil, &ArgumentError{Tool: tool, Prompt: fmt.Sprintf(
			"Some details for %s are not in the expected format (%s). Please ask the user to restate them.",
			name, schemaSummary(err))}
	}
	return args, nil
}

// parseArgs applies the per-tool rules. A non-empty prompt means the
// arguments are unusable.
func parseArgs(tool domain.ToolName, f rawFields) (Args, string) {
	switch tool {
	case domain.ToolSearchContacts:
		a := SearchContactsArgs{Query: f.str("query"), Limit: f.count("limit", maxContactResults)}
		if a.Query == "" {
			return nil, "What name or email should I search contacts for?"
		}
		return a, ""

	case domain.ToolSearchNotes:
		a := SearchNotesArgs{Query: f.str("query"), EntityID: f.idPtr("entity_id"), Limit: f.count("limit", maxNoteResults)}
		if a.Query == "" {
			return nil, "What text should I search notes for?"
		}
		if et := f.str("entity_type"); et != "" {
			kind, ok := noteTarget(et)
			if !ok {
				return nil, unsupportedEntity(et)
			}
			a.EntityType = kind
		}
		return a, ""

	case domain.ToolCreateContact:
		a := CreateContactArgs{
			FirstName:   f.str("first_name"),
			LastName:    f.str("last_name"),
			Email:       f.str("email"),
			Phone:       f.str("phone"),
			CompanyName: f.str("company_name"),
			CompanyID:   f.idPtr("company_id"),
			Note:        f.str("note"),
		}
		var missing []string
		if a.FirstName == "" && a.LastName == "" && a.CompanyName == "" {
			missing = append(missing, "a name or organization")
		}
		if a.Email == "" && a.Phone == "" {
			missing = append(missing, "email or phone number")
		}
		if len(missing) > 0 {
			return nil, "To create a contact I need a name or organization and an email or phone number. Missing: " +
				strings.Join(missing, " and ") + "."
		}
		return a, ""

	case domain.ToolAddNote:
		a := AddNoteArgs{Text: f.str("text")}
		et := strings.ToLower(f.str("entity_type"))
		var missing []string
		switch {
		case et == "":
			missing = append(missing, "entity type (contact or deal)")
		case domain.EntityType(et) == domain.EntityCompany:
			a.EntityType = domain.EntityCompany
		default:
			kind, ok := noteTarget(et)
			if !ok {
				return nil, unsupportedEntity(et)
			}
			a.EntityType = kind
		}
		id, ok := f.id("entity_id")
		if !ok {
			missing = append(missing, "record id")
		}
		a.EntityID = id
		if a.Text == "" {
			missing = append(missing, "note text")
		}
		if len(missing) > 0 {
			return nil, "To add a note I need the entity type (contact or deal), its id and the note text. Missing: " +
				strings.Join(missing, ", ") + "."
		}
		return a, ""

	case domain.ToolCreateDeal:
		a := CreateDealArgs{
			Title:               f.str("title"),
			ContactID:           f.idPtr("contact_id"),
			VendorCompanyID:     f.idPtr("vendor_company_id"),
			Stage:               f.str("stage"),
			Amount:              f.floatPtr("amount"),
			Cost:                f.floatPtr("cost"),
			ExpectedClosingDate: f.str("expected_closing_date"),
		}
		var missing []string
		if a.Title == "" {
			missing = append(missing, "title")
		}
		id, ok := f.id("company_id")
		if !ok {
			missing = append(missing, "company id")
		}
		a.CompanyID = id
		if len(missing) > 0 {
			return nil, "To create a deal I need a title and a company id. Missing: " + strings.Join(missing, " and ") + "."
		}
		if k := f.str("deal_kind"); k != "" {
			kind, ok := domain.ParseDealKind(k)
			if !ok {
				return nil, fmt.Sprintf("Deal kind %q is not supported. Choose one of: sales, procurement, partnership.", k)
			}
			a.Kind = kind
		}
		if a.ExpectedClosingDate != "" {
			if _, err := time.Parse(time.DateOnly, a.ExpectedClosingDate); err != nil {
				return nil, "What is the expected closing date? Please use YYYY-MM-DD."
			}
		}
		return a, ""

	case domain.ToolUpdateDealStage:
		a := UpdateDealStageArgs{Stage: f.str("stage")}
		var missing []string
		id, ok := f.id("deal_id")
		if !ok {
			missing = append(missing, "deal id")
		}
		a.DealID = id
		if a.Stage == "" {
			missing = append(missing, "target stage")
		}
		if len(missing) > 0 {
			return nil, "To update a deal stage I need the deal id and the target stage. Missing: " +
				strings.Join(missing, " and ") + "."
		}
		return a, ""

	case domain.ToolPipelineSummary:
		a := PipelineSummaryArgs{Month: f.str("month")}
		if a.Month != "" {
			if _, err := time.Parse("2006-01", a.Month); err != nil {
				return nil, "Which month should I summarize? Please use YYYY-MM."
			}
		}
		return a, ""

	case domain.ToolSuggestFollowupEmail:
		a := SuggestFollowupEmailArgs{Goal: f.str("goal")}
		var missing []string
		if et := strings.ToLower(f.str("entity_type")); et == "" {
			missing = append(missing, "entity type (contact or deal)")
		} else {
			kind, ok := noteTarget(et)
			if !ok {
				return nil, unsupportedEntity(et)
			}
			a.EntityType = kind
		}
		id, ok := f.id("entity_id")
		if !ok {
			missing = append(missing, "record id")
		}
		a.EntityID = id
		if len(missing) > 0 {
			return nil, "To draft a follow-up email I need the entity type (contact or deal) and its id. Missing: " +
				strings.Join(missing, " and ") + "."
		}
		return a, ""

	case domain.ToolWebSearch:
		a := WebSearchArgs{Query: f.str("query"), MaxResults: f.count("max_results", maxWebResults)}
		if a.Query == "" {
			return nil, "What should I search the web for?"
		}
		return a, ""
	}
	return nil, fmt.Sprintf("I don't know how to run %s.", tool)
}

func noteTarget(s string) (domain.EntityType, bool) {
	et := domain.EntityType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range domain.NoteTargets {
		if et == t {
			return et, true
		}
	}
	return "", false
}

func unsupportedEntity(got string) string {
	names := make([]string, 0, len(domain.NoteTargets))
	for _, t := range domain.NoteTargets {
		names = append(names, string(t))
	}
	return fmt.Sprintf("%q is not a supported record type. Supported entity types: %s.", got, strings.Join(names, ", "))
}

// schemaSummary returns the most specific line of a schema validation error.
func schemaSummary(err error) string {
	msg := err.Error()
	var lines []string
	for l := range strings.SplitSeq(msg, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return msg
	}
	return lines[len(lines)-1]
}

// IsArgumentError reports whether err carries a user-facing prompt.
func IsArgumentError(err error) (*ArgumentError, bool) {
	var ae *ArgumentError
	ok := errors.As(err, &ae)
	return ae, ok
}
