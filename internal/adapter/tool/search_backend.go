package tool

import "context"

// SearchBackend abstracts a web search engine.
type SearchBackend interface {
	// Search returns at most maxResults ranked results for query.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
	// Name returns the backend identifier (e.g. "tavily").
	Name() string
}

// SearchResult is one normalized search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
