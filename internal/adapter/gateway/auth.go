// Package gateway authenticates inbound assistant requests.
package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Authenticator resolves a bearer token to the caller it belongs to.
type Authenticator interface {
	Authenticate(token string) (domain.Caller, error)
}

// TokenEntry maps one static token to a caller.
type TokenEntry struct {
	Token  string
	Caller domain.Caller
}

type authEntry struct {
	token  []byte
	caller domain.Caller
}

// StaticTokenAuth authenticates callers against a static token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from token entries. Entries
// with an empty token are skipped.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, 0, len(entries))}
	for _, e := range entries {
		if e.Token == "" {
			continue
		}
		a.entries = append(a.entries, authEntry{token: []byte(e.Token), caller: e.Caller})
	}
	return a
}

// Authenticate returns the caller owning token. Every entry is compared so
// the time taken does not depend on which one matches.
func (s *StaticTokenAuth) Authenticate(token string) (domain.Caller, error) {
	if token == "" {
		return domain.Caller{}, domain.ErrGatewayAuthFailed
	}
	tokenBytes := []byte(token)
	var (
		found   domain.Caller
		matched bool
	)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 && !matched {
			found, matched = e.caller, true
		}
	}
	if !matched {
		return domain.Caller{}, domain.ErrGatewayAuthFailed
	}
	return found, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
