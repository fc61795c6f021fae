package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

const (
	defaultSearchBreakerFailures uint32 = 5
	defaultSearchBreakerTimeout         = 30 * time.Second
	defaultSearchBreakerInterval        = 60 * time.Second
)

// BreakerConfig tunes BreakerBackend. Zero values use defaults.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// BreakerBackend fails fast once a search backend keeps failing.
type BreakerBackend struct {
	inner   SearchBackend
	breaker *gobreaker.CircuitBreaker[[]SearchResult]
}

// NewBreakerBackend wraps inner with a circuit breaker.
func NewBreakerBackend(inner SearchBackend, cfg BreakerConfig, logger *slog.Logger) *BreakerBackend {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultSearchBreakerFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultSearchBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultSearchBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[[]SearchResult](gobreaker.Settings{
		Name:        "search:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Caller mistakes should not open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrInvalidInput)
		},
	})
	return &BreakerBackend{inner: inner, breaker: cb}
}

func (b *BreakerBackend) Name() string { return b.inner.Name() }

func (b *BreakerBackend) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	res, err := b.breaker.Execute(func() ([]SearchResult, error) {
		return b.inner.Search(ctx, query, maxResults)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("search backend %q: %w: %w", b.inner.Name(), domain.ErrSearchUnavailable, err)
	}
	return res, err
}

// State reports the breaker state.
func (b *BreakerBackend) State() gobreaker.State { return b.breaker.State() }
