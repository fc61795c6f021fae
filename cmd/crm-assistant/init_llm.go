package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Majhi12/atomic-crm/internal/adapter/llm"
	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/config"
)

// LLMComponents holds the configured providers and the chain the assistant talks to.
type LLMComponents struct {
	Providers  *llm.Providers
	DefaultLLM domain.LLMProvider
}

// initLLM registers every configured provider, each behind its own circuit
// breaker when enabled, and wraps the default in failover.
func initLLM(ctx context.Context, cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	providers := llm.NewProviders()

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(ctx, pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, log)
		}
		if err := providers.Add(pc.Name, provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	var fallbacks []string
	if cfg.LLM.Failover.Enabled {
		fallbacks = cfg.LLM.Failover.Fallbacks
	}
	defaultLLM, err := providers.Chain(cfg.LLM.DefaultProvider, fallbacks, log)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}
	if len(fallbacks) > 0 {
		log.Info("model failover enabled", "fallbacks", fallbacks)
	}

	return &LLMComponents{Providers: providers, DefaultLLM: defaultLLM}, nil
}

func createLLMProvider(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.ProviderType() {
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "bedrock":
		return llm.NewBedrockProvider(ctx, pc, log)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", pc.ProviderType())
	}
}
