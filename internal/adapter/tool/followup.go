package tool

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

const (
	followupNoteLimit = 5
	followupMaxTokens = 600
)

const followupSystemPrompt = "You write short, friendly follow-up emails for a CRM user. " +
	"Return only the email body. No subject line, no markdown fences, no commentary."

type followupResult struct {
	Email     string `json:"email"`
	NotesUsed int    `json:"notes_used"`
}

func (e *Executor) suggestFollowupEmail(ctx context.Context, span trace.Span, a SuggestFollowupEmailArgs) (domain.ToolResult, error) {
	if e.llm == nil {
		return domain.Failure("follow-up drafting is not available"), nil
	}

	notes, err := e.store.RecentNotes(ctx, a.EntityType, a.EntityID, followupNoteLimit)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("read notes for %s %d: %w", a.EntityType, a.EntityID, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Draft a follow-up email for %s %d.\n", a.EntityType, a.EntityID)
	if a.Goal != "" {
		fmt.Fprintf(&sb, "Goal: %s\n", a.Goal)
	}
	if a.EntityType == domain.EntityDeal {
		deal, err := e.store.GetDeal(ctx, a.EntityID)
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("read deal %d: %w", a.EntityID, err)
		}
		writeDealContext(&sb, deal)
	}
	if len(notes) == 0 {
		sb.WriteString("There are no notes yet.\n")
	} else {
		sb.WriteString("Recent notes, newest first:\n")
		for _, n := range notes {
			fmt.Fprintf(&sb, "- %s: %s\n", n.CreatedAt.Format("2006-01-02"), n.Text)
		}
	}
	span.SetAttributes(tracer.IntAttr("followup.notes", len(notes)))

	// No tools on this call: the drafting model must not start its own loop.
	resp, err := e.llm.Chat(ctx, domain.ChatRequest{
		Model: e.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: followupSystemPrompt},
			{Role: domain.RoleUser, Content: sb.String()},
		},
		MaxTokens: followupMaxTokens,
	})
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("draft follow-up email: %w", err)
	}
	body := stripCodeFences(resp.Message.Content)
	if body == "" {
		return domain.Failure("the drafting model returned an empty email"), nil
	}
	return domain.Success(followupResult{Email: body, NotesUsed: len(notes)}), nil
}

func writeDealContext(sb *strings.Builder, d domain.Deal) {
	kind := d.Kind
	if kind == "" {
		kind = domain.UnknownKind
	}
	fmt.Fprintf(sb, "Deal %q is in stage %q (%s).\n", d.Name, d.Stage, kind)
	switch {
	case d.Amount != nil:
		fmt.Fprintf(sb, "Amount: %.2f\n", *d.Amount)
	case d.Cost != nil:
		fmt.Fprintf(sb, "Cost: %.2f\n", *d.Cost)
	}
	if d.ExpectedClosingDate != "" {
		fmt.Fprintf(sb, "Expected closing date: %s\n", d.ExpectedClosingDate)
	}
}

// stripCodeFences removes a markdown fence the model may wrap its output in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
