package main

import (
	"fmt"
	"log/slog"

	"github.com/Majhi12/atomic-crm/internal/adapter/tool"
	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/config"
)

// ToolComponents holds the tool registry and everything that executes calls.
type ToolComponents struct {
	Capabilities tool.Capabilities
	Search       *tool.WebSearch // nil when web search is off
	Registry     *tool.Registry
	Stages       *tool.StageModel
	Executor     *tool.Executor
	Dispatcher   *tool.Dispatcher
}

func initTools(
	cfg *config.Config,
	store domain.CRMStore,
	model domain.LLMProvider,
	audit domain.AuditLogger,
	bus domain.EventBus,
	log *slog.Logger,
) (*ToolComponents, error) {
	search, err := initSearch(cfg.Search, log)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	caps := tool.Capabilities{WebSearch: search != nil}

	registry, err := tool.NewRegistry(tool.ListTools(caps))
	if err != nil {
		return nil, err
	}

	stages := tool.NewStageModel(store, log)
	exec := tool.NewExecutor(tool.ExecutorDeps{
		Store:  store,
		Stages: stages,
		LLM:    model,
		Model:  cfg.Assistant.Model,
		Search: search,
		Audit:  audit,
		Bus:    bus,
		Logger: log,
	})

	return &ToolComponents{
		Capabilities: caps,
		Search:       search,
		Registry:     registry,
		Stages:       stages,
		Executor:     exec,
		Dispatcher:   tool.NewDispatcher(registry, exec, log),
	}, nil
}

// initSearch returns nil when no backend is configured, which keeps
// web_search out of the tool list.
func initSearch(cfg config.SearchConfig, log *slog.Logger) (*tool.WebSearch, error) {
	var backend tool.SearchBackend
	switch cfg.Backend {
	case "":
		return nil, nil
	case "tavily":
		if cfg.TavilyAPIKey == "" {
			return nil, fmt.Errorf("tavily backend requires tavily_api_key")
		}
		backend = tool.NewTavilyBackend(cfg.TavilyAPIKey, cfg.TavilyURL, log)
	case "searxng":
		if cfg.SearXNGURL == "" {
			return nil, fmt.Errorf("searxng backend requires searxng_url")
		}
		backend = tool.NewSearXNGBackend(cfg.SearXNGURL, log)
	default:
		return nil, fmt.Errorf("unsupported search backend %q", cfg.Backend)
	}

	if cb := cfg.CircuitBreaker; cb.Enabled {
		backend = tool.NewBreakerBackend(backend, tool.BreakerConfig{
			MaxFailures: cb.MaxFailures,
			Timeout:     cb.Timeout,
			Interval:    cb.Interval,
		}, log)
	}

	log.Info("web search enabled", "backend", backend.Name())
	return tool.NewWebSearch(backend, tool.WebSearchConfig{
		CacheTTL:      cfg.CacheTTL,
		RatePerMinute: cfg.RatePerMinute,
		Burst:         cfg.Burst,
	}, log), nil
}
