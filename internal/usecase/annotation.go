package usecase

import (
	"regexp"
	"strings"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Markers of the ask/confirm convention the system prompt teaches the model.
const (
	AskMarker     = "[ASK]"
	ConfirmPhrase = "Confirm to proceed?"
)

var (
	askPrefix      = regexp.MustCompile(`^\[ASK\]\s*`)
	confirmPattern = regexp.MustCompile(`(?i)\bconfirm to proceed\?`)
)

// Annotate classifies the text of an assistant message. Messages starting
// with the ask marker become ask, or confirm when they also carry the
// confirmation phrase; Body has the marker stripped. Everything else is
// plain with Body equal to the content.
func Annotate(content string) domain.Annotation {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, AskMarker) {
		return domain.Annotation{Kind: domain.AnnotationPlain, Body: content}
	}
	body := askPrefix.ReplaceAllString(trimmed, "")
	if confirmPattern.MatchString(trimmed) {
		return domain.Annotation{Kind: domain.AnnotationConfirm, Body: body}
	}
	return domain.Annotation{Kind: domain.AnnotationAsk, Body: body}
}

// annotate attaches the annotation of msg's content.
func annotate(msg domain.Message) domain.Message {
	a := Annotate(msg.Content)
	msg.Annotation = &a
	return msg
}
