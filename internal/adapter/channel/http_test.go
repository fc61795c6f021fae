package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Majhi12/atomic-crm/internal/adapter/gateway"
	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/usecase"
)

func newHTTPTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeResponder struct {
	mu      sync.Mutex
	calls   int
	history []domain.Message
	caller  domain.Caller
	cc      usecase.ClientContext
	reply   domain.Message
	err     error
}

func (f *fakeResponder) Respond(_ context.Context, history []domain.Message, caller domain.Caller, cc usecase.ClientContext) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history, f.caller, f.cc = history, caller, cc
	return f.reply, f.err
}

type deniedAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *deniedAudit) Log(_ context.Context, e domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *deniedAudit) Close() error { return nil }

const testToken = "tok-123"

type httpRig struct {
	ch        *HTTPChannel
	handler   http.Handler
	responder *fakeResponder
	audit     *deniedAudit
	hasKey    bool
}

func newHTTPRig(t *testing.T, reply domain.Message, err error) *httpRig {
	t.Helper()
	rig := &httpRig{
		responder: &fakeResponder{reply: reply, err: err},
		audit:     &deniedAudit{},
		hasKey:    true,
	}
	ch, cerr := NewHTTPChannel(HTTPConfig{MaxBodyBytes: 4096}, HTTPDeps{
		Assistant: rig.responder,
		Auth: gateway.NewStaticTokenAuth([]gateway.TokenEntry{
			{Token: testToken, Caller: domain.Caller{ID: "u-1", Name: "Sam"}},
		}),
		HasModelKey: func() bool { return rig.hasKey },
		Audit:       rig.audit,
		Logger:      newHTTPTestLogger(),
	})
	if cerr != nil {
		t.Fatalf("NewHTTPChannel: %v", cerr)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rig.ch = ch
	rig.handler = ch.Handler(ctx)
	return rig
}

func (r *httpRig) post(path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.handler.ServeHTTP(w, req)
	return w
}

const validBody = `{"messages":[{"role":"user","content":"Create a contact Jane at Acme"}],"context":{"assistant_mode":"sales","app_scope":"contacts"}}`

func decodeReply(t *testing.T, w *httptest.ResponseRecorder) assistantResponse {
	t.Helper()
	var resp assistantResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHTTPAssistantReply(t *testing.T) {
	reply := domain.Message{
		Role:       domain.RoleAssistant,
		Content:    "[ASK] Which email should I use?",
		Annotation: &domain.Annotation{Kind: domain.AnnotationAsk, Body: "Which email should I use?"},
	}
	rig := newHTTPRig(t, reply, nil)

	for _, path := range []string{AssistantPath, AssistantAliasPath} {
		w := rig.post(path, testToken, validBody)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body %s", path, w.Code, w.Body.String())
		}
		resp := decodeReply(t, w)
		if resp.Role != domain.RoleAssistant || resp.Content != reply.Content {
			t.Errorf("%s response = %+v", path, resp)
		}
		if resp.Annotation == nil || resp.Annotation.Kind != domain.AnnotationAsk {
			t.Errorf("%s annotation = %+v", path, resp.Annotation)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("%s missing CORS header", path)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id", path)
		}
	}

	if rig.responder.calls != 2 {
		t.Fatalf("Respond calls = %d", rig.responder.calls)
	}
	if rig.responder.caller.ID != "u-1" {
		t.Errorf("caller = %+v", rig.responder.caller)
	}
	if rig.responder.cc.AssistantMode != "sales" || rig.responder.cc.AppScope != "contacts" {
		t.Errorf("client context = %+v", rig.responder.cc)
	}
	if len(rig.responder.history) != 1 || rig.responder.history[0].Content != "Create a contact Jane at Acme" {
		t.Errorf("history = %+v", rig.responder.history)
	}
}

func TestHTTPMissingModelKeyBeforeAuth(t *testing.T) {
	rig := newHTTPRig(t, domain.Message{}, nil)
	rig.hasKey = false

	w := rig.post(AssistantPath, "", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model provider API key is not set") {
		t.Errorf("body = %s", w.Body.String())
	}
	if rig.responder.calls != 0 {
		t.Error("assistant must not run without a model key")
	}
	if len(rig.audit.events) != 0 {
		t.Error("key check precedes auth")
	}
}

func TestHTTPUnauthorized(t *testing.T) {
	rig := newHTTPRig(t, domain.Message{}, nil)

	for _, token := range []string{"", "wrong"} {
		w := rig.post(AssistantPath, token, `not json at all`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("token %q status = %d, want 401", token, w.Code)
		}
	}
	if rig.responder.calls != 0 {
		t.Error("assistant must not run for unauthenticated requests")
	}
	if len(rig.audit.events) != 2 || rig.audit.events[0].Type != domain.AuditAccessDenied {
		t.Errorf("audit events = %+v", rig.audit.events)
	}
}

func TestHTTPMalformedBody(t *testing.T) {
	rig := newHTTPRig(t, domain.Message{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"messages":`},
		{"missing messages", `{"context":{}}`},
		{"messages not array", `{"messages":"hello"}`},
		{"bad role", `{"messages":[{"role":"robot","content":"hi"}]}`},
		{"missing content", `{"messages":[{"role":"user"}]}`},
		{"context not object", `{"messages":[],"context":"sales"}`},
		{"too large", `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 5000) + `"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := rig.post(AssistantPath, testToken, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
	if rig.responder.calls != 0 {
		t.Errorf("Respond calls = %d", rig.responder.calls)
	}
}

func TestHTTPModelFailureRendersApology(t *testing.T) {
	rig := newHTTPRig(t, domain.Message{}, fmt.Errorf("Assistant.Respond: %w", domain.ErrProviderError))

	w := rig.post(AssistantPath, testToken, validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeReply(t, w)
	if resp.Role != domain.RoleAssistant {
		t.Errorf("role = %q", resp.Role)
	}
	if !strings.HasPrefix(resp.Content, ErrorReplyPrefix) || !strings.Contains(resp.Content, "provider error") {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestHTTPPreflightAndHealth(t *testing.T) {
	rig := newHTTPRig(t, domain.Message{}, nil)

	req := httptest.NewRequest(http.MethodOptions, AssistantPath, nil)
	w := httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("preflight = %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, HealthPath, nil)
	w = httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["status"] != "ok" {
		t.Errorf("health body = %v (%v)", body, err)
	}

	req = httptest.NewRequest(http.MethodGet, AssistantPath, nil)
	w = httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET assistant status = %d", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("GET assistant Allow = %q", allow)
	}

	req = httptest.NewRequest(http.MethodPost, HealthPath, nil)
	w = httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST health status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/unknown", nil)
	w = httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}
}

func TestHTTPChannelStartStop(t *testing.T) {
	ch, err := NewHTTPChannel(HTTPConfig{Addr: "127.0.0.1:0"}, HTTPDeps{
		Assistant: &fakeResponder{},
		Auth:      gateway.NewStaticTokenAuth(nil),
		Logger:    newHTTPTestLogger(),
	})
	if err != nil {
		t.Fatalf("NewHTTPChannel: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s%s", ch.Addr(), HealthPath))
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := ch.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := client.Get(fmt.Sprintf("http://%s%s", ch.Addr(), HealthPath)); err == nil {
		t.Error("expected error after Stop")
	}
}

func TestHTTPStopBeforeStart(t *testing.T) {
	ch, err := NewHTTPChannel(HTTPConfig{}, HTTPDeps{Auth: gateway.NewStaticTokenAuth(nil)})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := ch.Stop(context.Background()); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}
}
