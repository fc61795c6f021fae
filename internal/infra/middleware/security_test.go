package middleware

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeaders_HSTSWithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(w, req)

	if hsts := w.Header().Get("Strict-Transport-Security"); hsts == "" {
		t.Error("HSTS header should be set with TLS")
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/assistant", nil))

	if called {
		t.Error("preflight must not reach the handler")
	}
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("preflight = %d %q, want 200 ok", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "authorization, x-client-info, apikey, content-type" {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestCORS_HeadersOnEveryResponse(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/assistant", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing on error response")
	}
}

func TestRequestID(t *testing.T) {
	var seen []string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, domain.RequestIDFromContext(r.Context()))
	}))

	for range 2 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		if got := w.Header().Get("X-Request-ID"); got != seen[len(seen)-1] {
			t.Errorf("header %q does not match context id %q", got, seen[len(seen)-1])
		}
	}

	if len(seen) != 2 || seen[0] == seen[1] {
		t.Fatalf("ids = %v, want two distinct", seen)
	}
	for _, id := range seen {
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Errorf("%q is not a ULID: %v", id, err)
		}
	}
	if seen[0] >= seen[1] {
		t.Errorf("ids should sort in creation order: %v", seen)
	}
}

func serveFrom(h http.Handler, method, remote string) int {
	req := httptest.NewRequest(method, "/test", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, BurstSize: 3})(okHandler)

	ok, blocked := 0, 0
	for range 10 {
		switch serveFrom(h, "POST", "192.168.1.1:12345") {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			blocked++
		}
	}
	if ok != 3 || blocked != 7 {
		t.Errorf("ok=%d blocked=%d, want 3 and 7", ok, blocked)
	}
}

func TestRateLimit_SeparatesClientsAndSkipsPreflight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, BurstSize: 1})(okHandler)

	if serveFrom(h, "POST", "192.168.1.1:1") != http.StatusOK {
		t.Fatal("first request should pass")
	}
	if serveFrom(h, "POST", "192.168.1.1:2") != http.StatusTooManyRequests {
		t.Error("second request from same IP should be limited")
	}
	if serveFrom(h, "POST", "[2001:db8::1]:443") != http.StatusOK {
		t.Error("other client should pass")
	}
	if serveFrom(h, http.MethodOptions, "192.168.1.1:3") != http.StatusOK {
		t.Error("preflight should not be limited")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		xri     string
		trusted []string
		want    string
	}{
		{"direct", "1.2.3.4:12345", "", "", nil, "1.2.3.4"},
		{"ipv6 direct", "[2001:db8::1]:443", "", "", nil, "2001:db8::1"},
		{"untrusted xff ignored", "1.2.3.4:12345", "8.8.8.8", "", []string{"10.0.0.1"}, "1.2.3.4"},
		{"no proxies xff ignored", "1.2.3.4:12345", "8.8.8.8", "", nil, "1.2.3.4"},
		{"trusted xff first hop", "10.0.0.1:80", "203.0.113.1, 198.51.100.1", "", []string{"10.0.0.1"}, "203.0.113.1"},
		{"trusted real ip", "10.0.0.1:80", "", "203.0.113.9", []string{"10.0.0.1"}, "203.0.113.9"},
		{"trusted without headers", "10.0.0.1:80", "", "", []string{"10.0.0.1"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req, tt.trusted); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
