package usecase

import (
	"strings"
	"unicode"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// ConfirmationState is the position of the latest write proposal in the
// Proposed -> {Approved -> Executed, Declined -> Abandoned} lifecycle.
type ConfirmationState string

const (
	ConfirmationNone      ConfirmationState = "none"
	ConfirmationProposed  ConfirmationState = "proposed"
	ConfirmationApproved  ConfirmationState = "approved"
	ConfirmationDeclined  ConfirmationState = "declined"
	ConfirmationExecuted  ConfirmationState = "executed"
	ConfirmationAbandoned ConfirmationState = "abandoned"
)

// Confirmation describes the latest confirm proposal in a conversation.
type Confirmation struct {
	State    ConfirmationState
	Proposal domain.Message
	Reply    string
}

var (
	approveWords = map[string]bool{"yes": true, "y": true, "approve": true, "approved": true, "ok": true, "okay": true, "sure": true, "confirm": true, "confirmed": true, "proceed": true}
	declineWords = map[string]bool{"no": true, "n": true, "skip": true, "cancel": true, "decline": true, "stop": true}
)

// ResolveConfirmation derives the state of the last confirm proposal in
// history. Approval and refusal are read from the first word of the next
// user message only, so an unrelated request that happens to begin with
// "yes" counts as approval of whatever was proposed last.
func ResolveConfirmation(history []domain.Message) Confirmation {
	idx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant && kindOf(history[i]) == domain.AnnotationConfirm {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Confirmation{State: ConfirmationNone}
	}
	c := Confirmation{State: ConfirmationProposed, Proposal: history[idx]}

	replyIdx := -1
	for i := idx + 1; i < len(history); i++ {
		if history[i].Role == domain.RoleUser {
			replyIdx = i
			break
		}
	}
	if replyIdx < 0 {
		return c
	}
	c.Reply = history[replyIdx].Content
	rest := history[replyIdx+1:]

	w := firstWord(c.Reply)
	switch {
	case approveWords[w]:
		c.State = ConfirmationApproved
		if executedWrite(rest) {
			c.State = ConfirmationExecuted
		}
	case declineWords[w]:
		c.State = ConfirmationDeclined
		for _, m := range rest {
			if m.Role == domain.RoleAssistant {
				c.State = ConfirmationAbandoned
				break
			}
		}
	default:
		// The user moved on without answering.
		c.State = ConfirmationAbandoned
	}
	return c
}

func kindOf(m domain.Message) domain.AnnotationKind {
	if m.Annotation != nil {
		return m.Annotation.Kind
	}
	return Annotate(m.Content).Kind
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// executedWrite reports whether msgs contain a successful tool result for a
// write tool called by the assistant.
func executedWrite(msgs []domain.Message) bool {
	writes := make(map[string]bool)
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleAssistant:
			for _, tc := range m.ToolCalls {
				if domain.ToolName(tc.Name).IsWrite() {
					writes[tc.ID] = true
				}
			}
		case domain.RoleTool:
			if !writes[m.ToolCallID] {
				continue
			}
			if r, err := domain.ParseToolResult(m.Content); err == nil && r.Outcome == domain.OutcomeSuccess {
				return true
			}
		}
	}
	return false
}
