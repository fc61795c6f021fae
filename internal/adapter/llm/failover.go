package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

var _ domain.LLMProvider = (*FailoverProvider)(nil)

// FailoverProvider tries a primary provider, then each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover chain.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{primary: primary, fallbacks: fallbacks, logger: logger}
}

// Chat implements domain.LLMProvider. Cancellation stops the chain.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	f.logger.Warn("primary LLM failed, trying fallbacks", "primary", f.primary.Name(), "error", err)

	failures := []string{fmt.Sprintf("%s: %v", f.primary.Name(), err)}
	errs := []error{err}
	for _, fb := range f.fallbacks {
		if ctx.Err() != nil {
			break
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		f.logger.Warn("fallback LLM failed", "provider", fb.Name(), "error", err)
		failures = append(failures, fmt.Sprintf("%s: %v", fb.Name(), err))
		errs = append(errs, err)
	}

	return nil, &failoverError{failures: failures, errs: errs}
}

// failoverError reports every provider failure and unwraps to all of them.
type failoverError struct {
	failures []string
	errs     []error
}

func (e *failoverError) Error() string {
	return fmt.Sprintf("all providers failed: [%s]", strings.Join(e.failures, "; "))
}

func (e *failoverError) Unwrap() []error { return e.errs }

// Name implements domain.LLMProvider.
func (f *FailoverProvider) Name() string { return f.primary.Name() + "+failover" }
