package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable means the LLM backend could not serve the request
	// after exhausting the model fallback chain.
	ErrUnavailable = errors.New("llm unavailable")

	// ErrSchemaViolation means the model answered but the output did not
	// match the requested structure. Never retried at the gateway level.
	ErrSchemaViolation = errors.New("structured output violation")

	// ErrDisabled marks a retrieval source that is not configured.
	ErrDisabled = errors.New("source disabled")
)

// Snippet is one retrieved piece of evidence, from the local corpus or
// the web.
type Snippet struct {
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Origin    string    `json:"origin"` // "corpus" or "web"
	Score     float64   `json:"score"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FinancialFact is a revenue figure for one fiscal year.
type FinancialFact struct {
	Year     int     `json:"year"`
	Revenue  float64 `json:"revenue"`
	Currency string  `json:"currency"`
	Origin   string  `json:"origin"`
	SourceID string  `json:"source_id"`
}

// AgentRequest carries one question through the pipeline. Retry and
// Feedback are populated by the orchestrator when the critic rejects an
// attempt.
type AgentRequest struct {
	Company   string
	Query     string
	Directive string
	Retry     int
	Feedback  string
	KB        KBSnapshot
}

// Plan is the planner's decision for a request.
type Plan struct {
	NeedRetrieval bool
	SubQueries    []string
	FollowUps     []string
}

// RetrievalResult is the retriever's delta, merged into the session
// knowledge base by the orchestrator.
type RetrievalResult struct {
	Snippets []Snippet       `json:"snippets"`
	Facts    []FinancialFact `json:"facts"`
}

// Answer is a synthesized response. UsedSnippets lists the source ids
// the answer cited.
type Answer struct {
	Text          string   `json:"text"`
	UsedSnippets  []string `json:"used_snippets"`
	LowConfidence bool     `json:"low_confidence"`
}

// Verdict is the critic's judgement of an answer.
type Verdict struct {
	Accept   bool
	Feedback string
}

// SnippetSearcher is the retrieval surface both the corpus index and the
// web adapters present to the retriever.
type SnippetSearcher interface {
	Search(ctx context.Context, q string, k int) ([]Snippet, error)
}
