// Package channel exposes the assistant over HTTP.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/Majhi12/atomic-crm/internal/adapter/gateway"
	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/logger"
	"github.com/Majhi12/atomic-crm/internal/infra/middleware"
	"github.com/Majhi12/atomic-crm/internal/usecase"
)

// Routes served by HTTPChannel.
const (
	AssistantPath      = "/api/v1/assistant"
	AssistantAliasPath = "/functions/v1/assistant"
	HealthPath         = "/api/v1/health"
)

// ErrorReplyPrefix starts the assistant message returned when the model
// provider fails.
const ErrorReplyPrefix = "Sorry, something went wrong. "

// Responder produces the next assistant message for a conversation.
type Responder interface {
	Respond(ctx context.Context, history []domain.Message, caller domain.Caller, cc usecase.ClientContext) (domain.Message, error)
}

// requestSchema describes the inbound body.
const requestSchema = `{
  "type": "object",
  "required": ["messages"],
  "properties": {
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"type": "string", "enum": ["user", "assistant", "system", "tool"]},
          "content": {"type": "string"}
        }
      }
    },
    "context": {
      "type": "object",
      "properties": {
        "assistant_mode": {"type": "string"},
        "app_scope": {"type": "string"}
      }
    }
  }
}`

type assistantRequest struct {
	Messages []domain.Message      `json:"messages"`
	Context  usecase.ClientContext `json:"context"`
}

type assistantResponse struct {
	Role       string             `json:"role"`
	Content    string             `json:"content"`
	Annotation *domain.Annotation `json:"annotation,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPConfig holds listener and request settings.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	RateLimit    *middleware.RateLimitConfig // nil disables rate limiting
}

// HTTPDeps are the collaborators of HTTPChannel. HasModelKey is consulted
// on every request so a key added at runtime takes effect.
type HTTPDeps struct {
	Assistant   Responder
	Auth        gateway.Authenticator
	HasModelKey func() bool
	Audit       domain.AuditLogger
	Logger      *slog.Logger
}

// HTTPChannel serves the assistant endpoint.
type HTTPChannel struct {
	cfg    HTTPConfig
	deps   HTTPDeps
	schema *jsonschema.Schema
	server *http.Server

	// Actual bound address (set after Start)
	boundAddr string

	// Lifecycle management for rate limiter cleanup goroutine
	cancel context.CancelFunc
}

// NewHTTPChannel creates the HTTP channel.
func NewHTTPChannel(cfg HTTPConfig, deps HTTPDeps) (*HTTPChannel, error) {
	schema, err := jsonschema.NewCompiler().Compile([]byte(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HasModelKey == nil {
		deps.HasModelKey = func() bool { return true }
	}
	return &HTTPChannel{cfg: cfg, deps: deps, schema: schema}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (h *HTTPChannel) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+AssistantPath, h.handleAssistant)
	mux.HandleFunc("POST "+AssistantAliasPath, h.handleAssistant)
	mux.HandleFunc("GET "+HealthPath, h.handleHealth)

	var handler http.Handler = mux
	if h.cfg.RateLimit != nil {
		handler = middleware.RateLimit(ctx, *h.cfg.RateLimit)(handler)
	}
	return middleware.SecurityHeaders(middleware.CORS(middleware.RequestID(handler)))
}

// Start begins serving. Non-blocking.
func (h *HTTPChannel) Start(ctx context.Context) error {
	ctx, h.cancel = context.WithCancel(ctx)

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       h.cfg.ReadTimeout,
		WriteTimeout:      h.cfg.WriteTimeout,
		IdleTimeout:       h.cfg.IdleTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.deps.Logger.Info("http channel started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.deps.Logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address once started.
func (h *HTTPChannel) Addr() string { return h.boundAddr }

// Stop gracefully shuts down the server.
func (h *HTTPChannel) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HTTPChannel) handleAssistant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.WithRequest(h.deps.Logger, domain.RequestIDFromContext(ctx), "")

	if !h.deps.HasModelKey() {
		log.Error("assistant request rejected", "error", domain.ErrMissingAPIKey, "code", domain.CodeMissingAPIKey)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: domain.ErrMissingAPIKey.Error()})
		return
	}

	caller, err := h.deps.Auth.Authenticate(gateway.BearerToken(r))
	if err != nil {
		log.Warn("unauthenticated request", "remote", r.RemoteAddr, "code", domain.ErrorCodeOf(err))
		h.auditDenied(ctx, r)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	log = logger.WithRequest(h.deps.Logger, domain.RequestIDFromContext(ctx), caller.ID)

	req, err := h.decode(w, r)
	if err != nil {
		log.Info("bad request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	msg, err := h.deps.Assistant.Respond(ctx, req.Messages, caller, req.Context)
	if err != nil {
		log.Error("assistant failed", "error", err, "code", domain.ErrorCodeOf(err))
		writeJSON(w, http.StatusOK, assistantResponse{
			Role:    domain.RoleAssistant,
			Content: ErrorReplyPrefix + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, assistantResponse{
		Role:       msg.Role,
		Content:    msg.Content,
		Annotation: msg.Annotation,
	})
}

// decode reads the body, checks it against the request schema and
// unmarshals it.
func (h *HTTPChannel) decode(w http.ResponseWriter, r *http.Request) (assistantRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)

	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return assistantRequest{}, fmt.Errorf("request body too large (max %d bytes)", tooLarge.Limit)
		}
		return assistantRequest{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if result := h.schema.Validate(raw); !result.IsValid() {
		return assistantRequest{}, fmt.Errorf("invalid request: %s", result.Error())
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return assistantRequest{}, fmt.Errorf("invalid request: %w", err)
	}
	var req assistantRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return assistantRequest{}, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

func (h *HTTPChannel) auditDenied(ctx context.Context, r *http.Request) {
	if h.deps.Audit == nil {
		return
	}
	_ = h.deps.Audit.Log(ctx, domain.AuditEvent{
		Timestamp: time.Now(),
		Type:      domain.AuditAccessDenied,
		Resource:  r.URL.Path,
		Action:    r.Method,
		Outcome:   "denied",
		Detail: map[string]string{
			"remote":     r.RemoteAddr,
			"request_id": domain.RequestIDFromContext(ctx),
		},
	})
}

func (h *HTTPChannel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
