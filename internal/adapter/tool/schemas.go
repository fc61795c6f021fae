package tool

import (
	"encoding/json"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Capabilities are the process-wide switches that gate optional tools.
type Capabilities struct {
	// WebSearch is true when a search backend is configured.
	WebSearch bool
}

type catalogueEntry struct {
	name        domain.ToolName
	description string
	schema      string
	enabled     func(Capabilities) bool
}

func always(Capabilities) bool { return true }

// catalogue is the declaration order presented to the model.
var catalogue = []catalogueEntry{
	{
		name:        domain.ToolSearchContacts,
		description: "Search contacts by partial first name, last name or email. Returns at most 25 contacts.",
		enabled:     always,
		schema: `{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "description": "Text to match against names and emails"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 25}
			},
			"required": ["query"],
			"additionalProperties": false
		}`,
	},
	{
		name:        domain.ToolSearchNotes,
		description: "Search notes by partial text, optionally within one contact or deal. Returns at most 50 notes.",
		enabled:     always,
		schema: `{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1},
				"entity_type": {"type": "string", "enum": ["contact", "deal"]},
				"entity_id": {"type": "integer", "minimum": 1},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["query"],
			"additionalProperties": false
		}`,
	},
	{
		name: domain.ToolCreateContact,
		description: "Create a contact. Needs a name or organization and an email or phone number. " +
			"company_name is matched to an existing company or created. An optional note is attached to the new contact. WRITE: confirm first.",
		enabled: always,
		schema: `{
			"type": "object",
			"properties": {
				"first_name": {"type": "string"},
				"last_name": {"type": "string"},
				"email": {"type": "string"},
				"phone": {"type": "string"},
				"company_name": {"type": "string"},
				"company_id": {"type": "integer", "minimum": 1},
				"note": {"type": "string"}
			},
			"additionalProperties": false
		}`,
	},
	{
		name:        domain.ToolAddNote,
		description: "Attach a note to a contact or deal. WRITE: confirm first.",
		enabled:     always,
		schema: `{
			"type": "object",
			"properties": {
				"entity_type": {"type": "string", "enum": ["contact", "deal", "company"]},
				"entity_id": {"type": "integer", "minimum": 1},
				"text": {"type": "string", "minLength": 1}
			},
			"required": ["entity_type", "entity_id", "text"],
			"additionalProperties": false
		}`,
	},
	{
		name: domain.ToolCreateDeal,
		description: "Create a deal for a company. deal_kind defaults to sales and stage to the first stage of that kind. " +
			"Procurement deals record the value as cost, other kinds as amount. WRITE: confirm first.",
		enabled: always,
		schema: `{
			"type": "object",
			"properties": {
				"title": {"type": "string", "minLength": 1},
				"company_id": {"type": "integer", "minimum": 1},
				"contact_id": {"type": ["integer", "null"], "minimum": 1},
				"vendor_company_id": {"type": ["integer", "null"], "minimum": 1},
				"deal_kind": {"type": "string", "enum": ["sales", "procurement", "partnership"]},
				"stage": {"type": "string"},
				"amount": {"type": ["number", "null"]},
				"cost": {"type": ["number", "null"]},
				"expected_closing_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
			},
			"required": ["title", "company_id"],
			"additionalProperties": false
		}`,
	},
	{
		name:        domain.ToolUpdateDealStage,
		description: "Move a deal to another stage. WRITE: confirm first.",
		enabled:     always,
		schema: `{
			"type": "object",
			"properties": {
				"deal_id": {"type": "integer", "minimum": 1},
				"stage": {"type": "string", "minLength": 1}
			},
			"required": ["deal_id", "stage"],
			"additionalProperties": false
		}`,
	},
	{
		name:        domain.ToolPipelineSummary,
		description: "Summarize deals created this month (or the given YYYY-MM month) per deal kind: count, total amount, total cost.",
		enabled:     always,
		schema: `{
			"type": "object",
			"properties": {
				"month": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}$"}
			},
			"additionalProperties": false
		}`,
	},
	{
		name:        domain.ToolSuggestFollowupEmail,
		description: "Draft a follow-up email body for a contact or deal from its most recent notes.",
		enabled:     always,
		schema: `{
			"type": "object",
			"properties": {
				"entity_type": {"type": "string", "enum": ["contact", "deal"]},
				"entity_id": {"type": "integer", "minimum": 1},
				"goal": {"type": "string"}
			},
			"required": ["entity_type", "entity_id"],
			"additionalProperties": false
		}`,
	},
	{
		name:        domain.ToolWebSearch,
		description: "Search the web for new leads or company information. Returns title, url and snippet per result.",
		enabled:     func(c Capabilities) bool { return c.WebSearch },
		schema: `{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10}
			},
			"required": ["query"],
			"additionalProperties": false
		}`,
	},
}

// Catalogue returns every known tool in declaration order with Enabled set
// from caps.
func Catalogue(caps Capabilities) []domain.ToolDefinition {
	defs := make([]domain.ToolDefinition, 0, len(catalogue))
	for _, e := range catalogue {
		defs = append(defs, domain.ToolDefinition{
			Name:        e.name,
			Description: e.description,
			Schema:      json.RawMessage(e.schema),
			Enabled:     e.enabled(caps),
		})
	}
	return defs
}

// ListTools returns the enabled tools in declaration order.
func ListTools(caps Capabilities) []domain.ToolDefinition {
	all := Catalogue(caps)
	out := all[:0]
	for _, d := range all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}
