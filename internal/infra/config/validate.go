package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
//
// A missing model API key is not a validation error: the HTTP channel
// reports it per request so the service stays up to answer health checks.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateAssistant(cfg, ve)
	validateLLM(cfg, ve)
	validateSearch(cfg, ve)
	validateStore(cfg, ve)
	validateAuth(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateAudit(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", s.Addr, err)
	}
	if s.WriteTimeout < 0 || s.ReadTimeout < 0 || s.IdleTimeout < 0 {
		ve.Add("server timeouts must be >= 0")
	}
	if s.MaxBodyBytes <= 0 {
		ve.Add("server.max_body_bytes must be > 0")
	}
	if s.RateLimit.Enabled && s.RateLimit.RequestsPerMinute <= 0 {
		ve.Add("server.rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
	}
}

func validateAssistant(cfg *Config, ve *ValidationError) {
	a := cfg.Assistant
	if a.MaxTokens < 0 {
		ve.Add("assistant.max_tokens must be >= 0")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		ve.Add("assistant.temperature must be within [0, 2]")
	}
	if a.MaxHistory < 0 {
		ve.Add("assistant.max_history must be >= 0")
	}
	if a.Retry.MaxRetries < 0 {
		ve.Add("assistant.retry.max_retries must be >= 0")
	}
	if a.Retry.MaxDelay > 0 && a.Retry.BaseDelay > a.Retry.MaxDelay {
		ve.Add("assistant.retry.base_delay must not exceed max_delay")
	}
}

var validProviderTypes = map[string]bool{
	"openai":  true,
	"bedrock": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must not be empty")
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.ProviderType()] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, bedrock)", i, p.ProviderType())
		}
		if p.ProviderType() == "bedrock" && p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model is required for bedrock provider", i, p.Name)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d] (%s): base_url %q is not an absolute URL", i, p.Name, p.BaseURL)
			}
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		if len(cfg.LLM.Failover.Fallbacks) == 0 {
			ve.Add("llm.failover.fallbacks must not be empty when failover is enabled")
		}
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
			if fb == cfg.LLM.DefaultProvider {
				ve.Add("llm.failover.fallbacks: %q is the default provider", fb)
			}
		}
	}
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	switch s.Backend {
	case "":
	case "tavily":
		if s.TavilyAPIKey == "" {
			ve.Add("search.tavily_api_key is required for the tavily backend (or set TAVILY_API_KEY)")
		}
	case "searxng":
		if s.SearXNGURL == "" {
			ve.Add("search.searxng_url is required for the searxng backend")
		}
	default:
		ve.Add("search.backend %q is invalid (want: tavily, searxng, or empty)", s.Backend)
	}
	if s.RatePerMinute < 0 {
		ve.Add("search.rate_per_minute must be >= 0")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, t := range cfg.Auth.Tokens {
		if t.Token == "" {
			ve.Add("auth.tokens[%d].token must not be empty", i)
			continue
		}
		if t.CallerID == "" {
			ve.Add("auth.tokens[%d].caller_id must not be empty", i)
		}
		if seen[t.Token] {
			ve.Add("auth.tokens[%d]: duplicate token", i)
		}
		seen[t.Token] = true
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1]")
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		ve.Add("audit.path must not be empty when audit is enabled")
	}
}
