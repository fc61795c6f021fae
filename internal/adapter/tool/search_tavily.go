package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

const (
	defaultTavilyURL  = "https://api.tavily.com/search"
	maxSearchBodySize = 512 * 1024
)

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// TavilyBackend searches the web through the Tavily search API.
type TavilyBackend struct {
	client   *http.Client
	endpoint string
	apiKey   string
	logger   *slog.Logger
}

// NewTavilyBackend creates a Tavily backend. An empty endpoint uses the
// public API.
func NewTavilyBackend(apiKey, endpoint string, logger *slog.Logger) *TavilyBackend {
	if endpoint == "" {
		endpoint = defaultTavilyURL
	}
	return &TavilyBackend{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger,
	}
}

func (b *TavilyBackend) Name() string { return "tavily" }

func (b *TavilyBackend) Search(ctx context.Context, query string, maxResults int) (_ []SearchResult, err error) {
	ctx, span := tracer.StartSpan(ctx, "search.tavily")
	defer func() { tracer.Finish(span, err) }()

	payload, err := json.Marshal(tavilyRequest{APIKey: b.apiKey, Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, searchHTTPError("Tavily.Search", resp.StatusCode, body)
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, min(len(parsed.Results), maxResults))
	for _, r := range parsed.Results {
		if len(results) >= maxResults {
			break
		}
		snippet := r.Content
		if snippet == "" {
			snippet = r.Snippet
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: snippet})
	}

	b.logger.Debug("tavily search completed", "query", query, "results", len(results))
	return results, nil
}

// searchHTTPError maps a provider status to a domain sentinel.
func searchHTTPError(op string, status int, body []byte) error {
	detail := fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(truncateText(string(body), 200)))
	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewSubSystemError("search", op, domain.ErrRateLimit, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewSubSystemError("search", op, domain.ErrAuthInvalid, detail)
	case status >= 500:
		return domain.NewSubSystemError("search", op, domain.ErrSearchUnavailable, detail)
	default:
		return domain.NewSubSystemError("search", op, domain.ErrInvalidInput, detail)
	}
}

// truncateText shortens s to at most n bytes on a rune boundary.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for i := range s {
		if i > n {
			break
		}
		end = i
	}
	return s[:end] + "..."
}
