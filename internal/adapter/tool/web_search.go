package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

const (
	defaultWebResults = 5
	defaultCacheTTL   = 15 * time.Minute
	maxCacheEntries   = 100
)

// WebSearchConfig tunes WebSearch. Zero values use defaults; a zero
// RatePerMinute disables limiting.
type WebSearchConfig struct {
	CacheTTL      time.Duration
	RatePerMinute int
	Burst         int
}

type cacheEntry struct {
	results   []SearchResult
	expiresAt time.Time
}

// WebSearch fronts a SearchBackend with a TTL cache and a request limiter.
type WebSearch struct {
	backend  SearchBackend
	limiter  *rate.Limiter
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewWebSearch creates a WebSearch over backend.
func NewWebSearch(backend SearchBackend, cfg WebSearchConfig, logger *slog.Logger) *WebSearch {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), burst)
	}
	return &WebSearch{
		backend:  backend,
		limiter:  limiter,
		cacheTTL: ttl,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

// Backend returns the backend name.
func (w *WebSearch) Backend() string { return w.backend.Name() }

// Search returns results for query, from cache when fresh. The bool reports
// a cache hit. Cache hits do not consume the rate budget.
func (w *WebSearch) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, bool, error) {
	key := fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(query)), maxResults)
	if cached, ok := w.getCached(key); ok {
		w.logger.Debug("web search cache hit", "query", query)
		return cached, true, nil
	}

	if w.limiter != nil && !w.limiter.Allow() {
		return nil, false, domain.NewSubSystemError("search", "WebSearch.Search", domain.ErrRateLimit, "too many web searches, try again shortly")
	}

	results, err := w.backend.Search(ctx, query, maxResults)
	if err != nil {
		return nil, false, err
	}
	w.putCache(key, results)
	return results, false, nil
}

func (w *WebSearch) getCached(key string) ([]SearchResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.cache[key]
	if !ok {
		return nil, false
	}
	if w.now().After(entry.expiresAt) {
		delete(w.cache, key)
		return nil, false
	}
	return entry.results, true
}

func (w *WebSearch) putCache(key string, results []SearchResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.cache[key] = cacheEntry{results: results, expiresAt: now.Add(w.cacheTTL)}
	if len(w.cache) > maxCacheEntries {
		for k, v := range w.cache {
			if now.After(v.expiresAt) {
				delete(w.cache, k)
			}
		}
	}
}

// PurgeExpired drops stale cache entries and returns how many were removed.
func (w *WebSearch) PurgeExpired() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	n := 0
	for k, v := range w.cache {
		if now.After(v.expiresAt) {
			delete(w.cache, k)
			n++
		}
	}
	return n
}

type webSearchResult struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Cached  bool           `json:"cached,omitempty"`
}

func (e *Executor) webSearch(ctx context.Context, span trace.Span, a WebSearchArgs) (domain.ToolResult, error) {
	if e.search == nil {
		return domain.Failure("web search is not configured"), nil
	}
	count := defaultWebResults
	if a.MaxResults != nil {
		count = min(max(*a.MaxResults, 1), maxWebResults)
	}
	span.SetAttributes(
		tracer.StringAttr("search.backend", e.search.Backend()),
		tracer.IntAttr("search.max_results", count),
	)

	results, cached, err := e.search.Search(ctx, a.Query, count)
	if err != nil {
		return domain.ToolResult{}, err
	}
	if cached {
		span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
	}
	if results == nil {
		results = []SearchResult{}
	}
	return domain.Success(webSearchResult{Query: a.Query, Results: results, Cached: cached}), nil
}
