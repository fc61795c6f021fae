package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Assistant   AssistantConfig   `yaml:"assistant"`
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Store       StoreConfig       `yaml:"store"`
	Auth        AuthConfig        `yaml:"auth"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Audit       AuditConfig       `yaml:"audit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Includes    []string          `yaml:"includes,omitempty"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr         string          `yaml:"addr"`
	ReadTimeout  time.Duration   `yaml:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client-IP request limits.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	Burst             int      `yaml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies,omitempty"`
}

// AssistantConfig holds conversation loop settings.
type AssistantConfig struct {
	Model       string      `yaml:"model"` // "" = provider default
	MaxTokens   int         `yaml:"max_tokens"`
	Temperature float64     `yaml:"temperature"`
	MaxHistory  int         `yaml:"max_history"` // newest client turns sent to the model; 0 = all
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig controls retries of retryable model provider errors.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai" or "bedrock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// SearchConfig holds web search settings. An empty Backend disables the
// web_search tool.
type SearchConfig struct {
	Backend        string               `yaml:"backend"` // "", "tavily", "searxng"
	TavilyAPIKey   string               `yaml:"tavily_api_key"`
	TavilyURL      string               `yaml:"tavily_url"`
	SearXNGURL     string               `yaml:"searxng_url"`
	CacheTTL       time.Duration        `yaml:"cache_ttl"`
	RatePerMinute  int                  `yaml:"rate_per_minute"`
	Burst          int                  `yaml:"burst"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// StoreConfig holds CRM database settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds bearer-token authentication settings.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig maps one bearer token to a caller.
type TokenConfig struct {
	Token    string   `yaml:"token"`
	CallerID string   `yaml:"caller_id"`
	Name     string   `yaml:"name"`
	Roles    []string `yaml:"roles"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	MaxSize string `yaml:"max_size"` // e.g. "50MB"; rotates to <path>.1, "" = unbounded
}

// MaintenanceConfig holds schedules of background jobs. Each schedule is a
// cron expression or a duration; "" disables the job.
type MaintenanceConfig struct {
	SearchCachePurge string `yaml:"search_cache_purge"`
	StageCheck       string `yaml:"stage_check"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns $HOME/.crm-assistant, or ./data when $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".crm-assistant")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
		Assistant: AssistantConfig{
			MaxTokens:   1024,
			Temperature: 0.2,
			MaxHistory:  40,
			Retry: RetryConfig{
				MaxRetries: 2,
				BaseDelay:  500 * time.Millisecond,
				MaxDelay:   5 * time.Second,
			},
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{Name: "openai", Type: "openai", Model: "gpt-4o-mini"},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Search: SearchConfig{
			CacheTTL:      15 * time.Minute,
			RatePerMinute: 30,
			Burst:         5,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "crm.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter:    "stdout",
			ServiceName: "crm-assistant",
			SampleRatio: 1,
		},
		Audit: AuditConfig{
			Path: filepath.Join(dataDir, "audit.jsonl"),
		},
		Maintenance: MaintenanceConfig{
			SearchCachePurge: "10m",
			StageCheck:       "@hourly",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, decrypts
// secrets and validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return finish(cfg)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		// Re-apply the main file so it wins over its includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("CRMA_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CRMA_* env vars (plus OPENAI_API_KEY and
// TAVILY_API_KEY) to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRMA_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CRMA_ASSISTANT_MODEL"); v != "" {
		cfg.Assistant.Model = v
	}
	if v := os.Getenv("CRMA_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("CRMA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CRMA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CRMA_TRACER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracer.Enabled = b
		}
	}
	if v := os.Getenv("CRMA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CRMA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CRMA_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("CRMA_SEARCH_BACKEND"); v != "" {
		cfg.Search.Backend = v
	}
	if v := os.Getenv("CRMA_SEARCH_SEARXNG_URL"); v != "" {
		cfg.Search.SearXNGURL = v
	}
	if v := os.Getenv("CRMA_AUTH_TOKEN"); v != "" {
		cfg.Auth.Tokens = append(cfg.Auth.Tokens, TokenConfig{
			Token:    v,
			CallerID: envOr("CRMA_AUTH_CALLER_ID", "default"),
			Name:     "env",
		})
	}

	// Per-provider keys: CRMA_LLM_PROVIDER_<NAME>_API_KEY, then
	// OPENAI_API_KEY for openai-type providers still without one.
	openAIKey := os.Getenv("OPENAI_API_KEY")
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		envKey := "CRMA_LLM_PROVIDER_" + strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			p.APIKey = v
		}
		if p.APIKey == "" && p.ProviderType() == "openai" && openAIKey != "" {
			p.APIKey = openAIKey
		}
	}

	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		if cfg.Search.TavilyAPIKey == "" {
			cfg.Search.TavilyAPIKey = v
		}
		if cfg.Search.Backend == "" {
			cfg.Search.Backend = "tavily"
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ProviderType returns Type, falling back to the provider name.
func (p ProviderConfig) ProviderType() string {
	if p.Type != "" {
		return p.Type
	}
	return p.Name
}

// DefaultProviderConfig returns the provider named by DefaultProvider.
func (c *LLMConfig) DefaultProviderConfig() (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == c.DefaultProvider {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// HasModelKey reports whether the default provider can authenticate.
// Bedrock uses the AWS credential chain and always reports true.
func (c *LLMConfig) HasModelKey() bool {
	p, ok := c.DefaultProviderConfig()
	if !ok {
		return false
	}
	return p.ProviderType() == "bedrock" || p.APIKey != ""
}

// validatePermissions checks the config file is not group/world writable.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
