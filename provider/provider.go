package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/accountplan/config"
)

// ErrUnavailable reports that the backend rejected the call for capacity
// reasons (quota, rate limit, transient 5xx). A different model or a later
// retry may succeed; the gateway owns that policy.
var ErrUnavailable = errors.New("llm backend unavailable")

// Client is the minimal surface the gateway needs from an LLM backend.
type Client interface {
	Generate(ctx context.Context, model, prompt string, temperature float64) (string, error)
}

// New creates an LLM client based on configuration
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(cfg), nil
	case "openai":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Provider)
	}
}

// retryableStatus reports whether an HTTP status from a backend should be
// treated as ErrUnavailable rather than a hard failure.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
