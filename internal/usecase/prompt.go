package usecase

import (
	"fmt"
	"strings"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// ClientContext is optional UI state sent with a request.
type ClientContext struct {
	AssistantMode string `json:"assistant_mode,omitempty"`
	AppScope      string `json:"app_scope,omitempty"`
}

func (c ClientContext) empty() bool { return c.AssistantMode == "" && c.AppScope == "" }

var basePolicy = []string{
	"You are the in-app CRM assistant.",
	"- Ask clarifying questions when queries are ambiguous (e.g., geography, industry, role).",
	"- For CRM queries (find contacts, notes, deals), prefer CRM tools first.",
	"- Call at most one tool per reply and wait for its result.",
	"- Suggest deal creation when user intent implies an opportunity; ask for amount/stage if missing.",
	"- Keep answers concise, then offer next actions as options.",
}

const webSearchPolicy = "- When searching for new leads not in the CRM, use web_search, summarize findings, and propose which to add as contacts."

var askConfirmPolicy = []string{
	"Clarification and confirmation:",
	"- If a tool result has status \"needs_info\", reply with a message that starts with " + AskMarker + " followed by its prompt text exactly as given.",
	"- Before any write (create_contact, add_note, create_deal, update_deal_stage) whose details are complete, do not call the tool yet. " +
		"Reply with a message that starts with " + AskMarker + ", summarizes the planned change and ends with \"" + ConfirmPhrase + "\"",
	"- If the user's next message approves (for example \"Yes\" or \"Approve\"), call the tool with the proposed arguments. " +
		"If it declines (for example \"No\" or \"Skip\"), do not write anything and ask what to do instead.",
}

// SystemPrompt assembles the system message content from the tool policy,
// the ask/confirm contract, the stage vocabulary and the client context.
func SystemPrompt(vocab map[domain.DealKind][]string, webSearch bool, cc ClientContext) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(basePolicy, "\n"))
	if webSearch {
		sb.WriteString("\n" + webSearchPolicy)
	}

	sb.WriteString("\n\n")
	sb.WriteString(strings.Join(askConfirmPolicy, "\n"))

	if len(vocab) > 0 {
		sb.WriteString("\n\nDeal stages by deal_kind (use these names exactly):")
		for _, kind := range domain.DealKinds {
			stages, ok := vocab[kind]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "\n- %s: %s", kind, strings.Join(stages, ", "))
		}
	}

	if !cc.empty() {
		fmt.Fprintf(&sb, "\n\nContext: assistant_mode=%s; app_scope=%s. "+
			"If creating or updating deals, default deal_kind to the selected mode when it makes sense. "+
			"Prefer concise Markdown in replies.", orUnset(cc.AssistantMode), orUnset(cc.AppScope))
	}
	return sb.String()
}

func orUnset(s string) string {
	if s == "" {
		return "unset"
	}
	return s
}
