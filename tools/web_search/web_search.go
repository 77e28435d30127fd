package web_search

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/accountplan/tools/web_search/brave"
	"github.com/mohammad-safakhou/accountplan/tools/web_search/models"
	"github.com/mohammad-safakhou/accountplan/tools/web_search/serper"
)

// WebSearcher returns ranked snippets for a query.
type WebSearcher interface {
	Search(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrDisabled reports that web search is not configured. Callers treat
	// it as zero results, never as a fatal error.
	ErrDisabled = errors.New("web search disabled")
)

// NewWebSearcher builds a searcher for the configured provider. A missing
// API key yields ErrDisabled so the pipeline can run corpus-only.
func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
