package tool

import "github.com/Majhi12/atomic-crm/internal/domain"

// Args is the closed set of validated tool arguments. Only this package can
// add variants; the executor switches over all of them.
type Args interface {
	Tool() domain.ToolName
	isArgs()
}

// SearchContactsArgs are the arguments of search_contacts.
type SearchContactsArgs struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

// SearchNotesArgs are the arguments of search_notes.
type SearchNotesArgs struct {
	Query      string            `json:"query"`
	EntityType domain.EntityType `json:"entity_type,omitempty"`
	EntityID   *int64            `json:"entity_id,omitempty"`
	Limit      *int              `json:"limit,omitempty"`
}

// CreateContactArgs are the arguments of create_contact.
type CreateContactArgs struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	CompanyID   *int64 `json:"company_id,omitempty"`
	Note        string `json:"note,omitempty"`
}

// AddNoteArgs are the arguments of add_note.
type AddNoteArgs struct {
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   int64             `json:"entity_id"`
	Text       string            `json:"text"`
}

// CreateDealArgs are the arguments of create_deal. Kind is empty when the
// caller did not choose one.
type CreateDealArgs struct {
	Title               string          `json:"title"`
	CompanyID           int64           `json:"company_id"`
	ContactID           *int64          `json:"contact_id,omitempty"`
	VendorCompanyID     *int64          `json:"vendor_company_id,omitempty"`
	Kind                domain.DealKind `json:"deal_kind,omitempty"`
	Stage               string          `json:"stage,omitempty"`
	Amount              *float64        `json:"amount,omitempty"`
	Cost                *float64        `json:"cost,omitempty"`
	ExpectedClosingDate string          `json:"expected_closing_date,omitempty"`
}

// UpdateDealStageArgs are the arguments of update_deal_stage.
type UpdateDealStageArgs struct {
	DealID int64  `json:"deal_id"`
	Stage  string `json:"stage"`
}

// PipelineSummaryArgs are the arguments of pipeline_summary. Month is
// YYYY-MM or empty for the current month.
type PipelineSummaryArgs struct {
	Month string `json:"month,omitempty"`
}

// SuggestFollowupEmailArgs are the arguments of suggest_followup_email.
type SuggestFollowupEmailArgs struct {
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   int64             `json:"entity_id"`
	Goal       string            `json:"goal,omitempty"`
}

// WebSearchArgs are the arguments of web_search.
type WebSearchArgs struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results,omitempty"`
}

func (SearchContactsArgs) Tool() domain.ToolName       { return domain.ToolSearchContacts }
func (SearchNotesArgs) Tool() domain.ToolName          { return domain.ToolSearchNotes }
func (CreateContactArgs) Tool() domain.ToolName        { return domain.ToolCreateContact }
func (AddNoteArgs) Tool() domain.ToolName              { return domain.ToolAddNote }
func (CreateDealArgs) Tool() domain.ToolName           { return domain.ToolCreateDeal }
func (UpdateDealStageArgs) Tool() domain.ToolName      { return domain.ToolUpdateDealStage }
func (PipelineSummaryArgs) Tool() domain.ToolName      { return domain.ToolPipelineSummary }
func (SuggestFollowupEmailArgs) Tool() domain.ToolName { return domain.ToolSuggestFollowupEmail }
func (WebSearchArgs) Tool() domain.ToolName            { return domain.ToolWebSearch }

func (SearchContactsArgs) isArgs()       {}
func (SearchNotesArgs) isArgs()          {}
func (CreateContactArgs) isArgs()        {}
func (AddNoteArgs) isArgs()              {}
func (CreateDealArgs) isArgs()           {}
func (UpdateDealStageArgs) isArgs()      {}
func (PipelineSummaryArgs) isArgs()      {}
func (SuggestFollowupEmailArgs) isArgs() {}
func (WebSearchArgs) isArgs()            {}
