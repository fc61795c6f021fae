package main

import (
	"fmt"
	"log/slog"

	"github.com/Majhi12/atomic-crm/internal/adapter/channel"
	"github.com/Majhi12/atomic-crm/internal/adapter/gateway"
	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/config"
	"github.com/Majhi12/atomic-crm/internal/infra/middleware"
	"github.com/Majhi12/atomic-crm/internal/security"
	"github.com/Majhi12/atomic-crm/internal/usecase"
	"github.com/Majhi12/atomic-crm/internal/usecase/scheduling"
)

// RuntimeComponents holds the assistant and the HTTP surface serving it.
type RuntimeComponents struct {
	Assistant *usecase.Assistant
	Channel   *channel.HTTPChannel
}

func initRuntime(
	cfg *config.Config,
	llmComp *LLMComponents,
	tools *ToolComponents,
	audit domain.AuditLogger,
	bus domain.EventBus,
	log *slog.Logger,
) (*RuntimeComponents, error) {
	ac := cfg.Assistant
	assistant := usecase.NewAssistant(usecase.AssistantDeps{
		LLM:        llmComp.DefaultLLM,
		Tools:      tools.Dispatcher,
		Stages:     tools.Stages,
		Context:    usecase.NewContextBuilder(ac.Model, ac.MaxTokens, ac.Temperature, ac.MaxHistory),
		Classifier: usecase.NewErrorClassifier(),
		Retry: usecase.RetryPolicy{
			MaxRetries: ac.Retry.MaxRetries,
			BaseDelay:  ac.Retry.BaseDelay,
			MaxDelay:   ac.Retry.MaxDelay,
		},
		Bus:    bus,
		Audit:  audit,
		Logger: log,
	})

	sc := cfg.Server
	httpCfg := channel.HTTPConfig{
		Addr:         sc.Addr,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
		MaxBodyBytes: sc.MaxBodyBytes,
	}
	if sc.RateLimit.Enabled {
		httpCfg.RateLimit = &middleware.RateLimitConfig{
			RequestsPerMin: sc.RateLimit.RequestsPerMinute,
			BurstSize:      sc.RateLimit.Burst,
			TrustedProxies: sc.RateLimit.TrustedProxies,
		}
	}

	ch, err := channel.NewHTTPChannel(httpCfg, channel.HTTPDeps{
		Assistant:   assistant,
		Auth:        gateway.NewStaticTokenAuth(authEntries(cfg.Auth)),
		HasModelKey: cfg.LLM.HasModelKey,
		Audit:       audit,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	return &RuntimeComponents{Assistant: assistant, Channel: ch}, nil
}

func authEntries(ac config.AuthConfig) []gateway.TokenEntry {
	entries := make([]gateway.TokenEntry, 0, len(ac.Tokens))
	for _, t := range ac.Tokens {
		entries = append(entries, gateway.TokenEntry{
			Token:  t.Token,
			Caller: domain.Caller{ID: t.CallerID, Name: t.Name, Roles: t.Roles},
		})
	}
	return entries
}

// initAudit opens the JSONL audit log, or a no-op logger when disabled.
func initAudit(cfg config.AuditConfig) (domain.AuditLogger, error) {
	if !cfg.Enabled {
		return security.NopAuditLogger{}, nil
	}
	maxSize, err := security.ParseSize(cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("max_size: %w", err)
	}
	return security.NewFileAuditLogger(cfg.Path, maxSize)
}

// initMaintenance schedules the background jobs enabled in cfg.
func initMaintenance(cfg config.MaintenanceConfig, tools *ToolComponents, log *slog.Logger) (*scheduling.Scheduler, error) {
	s := scheduling.NewScheduler(log)
	s.Register(scheduling.JobStageCheck, scheduling.CheckStages(tools.Stages))

	tasks := []scheduling.Task{{Name: "stage-check", Schedule: cfg.StageCheck, Job: scheduling.JobStageCheck}}
	if tools.Search != nil {
		s.Register(scheduling.JobSearchCachePurge, scheduling.PurgeCache(tools.Search, log))
		tasks = append(tasks, scheduling.Task{Name: "search-cache-purge", Schedule: cfg.SearchCachePurge, Job: scheduling.JobSearchCachePurge})
	}

	for _, task := range tasks {
		if task.Schedule == "" {
			continue
		}
		if err := s.AddTask(task); err != nil {
			return nil, err
		}
	}
	return s, nil
}
