package llm

import (
	"fmt"
	"log/slog"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

// Providers is the set of configured model providers keyed by their config
// name. It is filled once at startup and read-only afterwards.
type Providers struct {
	byName map[string]domain.LLMProvider
	order  []string
}

// NewProviders creates an empty set.
func NewProviders() *Providers {
	return &Providers{byName: make(map[string]domain.LLMProvider)}
}

// Add registers provider under name. Names are unique.
func (p *Providers) Add(name string, provider domain.LLMProvider) error {
	if _, exists := p.byName[name]; exists {
		return fmt.Errorf("provider %q configured twice", name)
	}
	p.byName[name] = provider
	p.order = append(p.order, name)
	return nil
}

// Names returns the provider names in configuration order.
func (p *Providers) Names() []string {
	return append([]string(nil), p.order...)
}

func (p *Providers) lookup(op, name string) (domain.LLMProvider, error) {
	provider, ok := p.byName[name]
	if !ok {
		return nil, domain.NewDomainError(op, domain.ErrProviderNotFound, name)
	}
	return provider, nil
}

// Chain resolves the provider the assistant talks to: primary alone, or
// primary followed by fallbacks in order. A fallback may appear once and
// never repeat the primary.
func (p *Providers) Chain(primary string, fallbacks []string, logger *slog.Logger) (domain.LLMProvider, error) {
	head, err := p.lookup("Providers.Chain", primary)
	if err != nil {
		return nil, err
	}
	if len(fallbacks) == 0 {
		return head, nil
	}

	seen := map[string]bool{primary: true}
	chain := make([]domain.LLMProvider, 0, len(fallbacks))
	for _, name := range fallbacks {
		if seen[name] {
			return nil, fmt.Errorf("failover provider %q listed twice in the chain", name)
		}
		seen[name] = true
		fb, err := p.lookup("Providers.Chain", name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fb)
	}
	return NewFailoverProvider(head, chain, logger), nil
}
