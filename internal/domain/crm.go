package domain

import (
	"strings"
	"time"
)

// DealKind is the classification of a deal. It selects the stage set and
// which monetary field applies.
type DealKind string

const (
	DealKindSales       DealKind = "sales"
	DealKindProcurement DealKind = "procurement"
	DealKindPartnership DealKind = "partnership"
)

// DealKinds lists every supported classification in display order.
var DealKinds = []DealKind{DealKindSales, DealKindProcurement, DealKindPartnership}

// ParseDealKind normalizes s. The empty string and unknown values report ok=false.
func ParseDealKind(s string) (DealKind, bool) {
	k := DealKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DealKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// UsesCost reports whether deals of this kind track spend rather than revenue.
func (k DealKind) UsesCost() bool { return k == DealKindProcurement }

// EntityType names a record kind a note can reference.
type EntityType string

const (
	EntityContact EntityType = "contact"
	EntityCompany EntityType = "company"
	EntityDeal    EntityType = "deal"
)

// NoteTargets are the entity types the notes table accepts.
var NoteTargets = []EntityType{EntityContact, EntityDeal}

// Caller is the authenticated principal on whose behalf writes are made.
type Caller struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Company is an organization record.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is a person record.
type Contact struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CompanyID *int64    `json:"company_id,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Deal is a pipeline opportunity.
type Deal struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	CompanyID           int64     `json:"company_id"`
	ContactID           *int64    `json:"contact_id,omitempty"`
	VendorCompanyID     *int64    `json:"vendor_company_id,omitempty"`
	Kind                DealKind  `json:"deal_kind,omitempty"`
	Stage               string    `json:"stage"`
	Amount              *float64  `json:"amount,omitempty"`
	Cost                *float64  `json:"cost,omitempty"`
	ExpectedClosingDate string    `json:"expected_closing_date,omitempty"`
	OwnerID             string    `json:"owner_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Note is free text attached to a contact or deal.
type Note struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Text       string     `json:"text"`
	AuthorID   string     `json:"author_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StageEntry is one row of a classification's stage set.
type StageEntry struct {
	Kind     DealKind `json:"deal_kind"`
	Stage    string   `json:"stage"`
	Position int      `json:"position"`
}

// PipelineBucket aggregates deals of one classification.
type PipelineBucket struct {
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
	TotalCost   float64 `json:"total_cost"`
}

// UnknownKind is the bucket key for deals without a recognized classification.
const UnknownKind = "unknown"

// PipelineSummary is the derived aggregate over a time window.
type PipelineSummary struct {
	From    time.Time                 `json:"from"`
	To      time.Time                 `json:"to"`
	Buckets map[string]PipelineBucket `json:"by_kind"`
}
