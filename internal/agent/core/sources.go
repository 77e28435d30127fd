package core

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/accountplan/tools/corpus"
	"github.com/mohammad-safakhou/accountplan/tools/web_search"
)

type corpusSource struct {
	c *corpus.Corpus
}

// CorpusSource presents the bleve index as a snippet searcher.
func CorpusSource(c *corpus.Corpus) SnippetSearcher {
	return corpusSource{c: c}
}

func (s corpusSource) Search(ctx context.Context, q string, k int) ([]Snippet, error) {
	hits, err := s.c.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []Snippet
	for _, h := range hits {
		out = append(out, Snippet{
			SourceID:  h.SourceID,
			Title:     h.Title,
			Text:      h.Fragment,
			Origin:    "corpus",
			Score:     h.Score,
			FetchedAt: now,
		})
	}
	return out, nil
}

type webSource struct {
	w web_search.WebSearcher
}

// WebSource presents a web search adapter as a snippet searcher.
func WebSource(w web_search.WebSearcher) SnippetSearcher {
	return webSource{w: w}
}

func (s webSource) Search(ctx context.Context, q string, k int) ([]Snippet, error) {
	results, err := s.w.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []Snippet
	for i, r := range results {
		out = append(out, Snippet{
			SourceID:  r.URL,
			Title:     r.Title,
			Text:      r.Snippet,
			Origin:    "web",
			Score:     1.0 / float64(i+1),
			FetchedAt: now,
		})
	}
	return out, nil
}

type disabledSource struct{}

// DisabledSource always reports ErrDisabled. Used where a source has no
// configuration at all.
func DisabledSource() SnippetSearcher { return disabledSource{} }

func (disabledSource) Search(context.Context, string, int) ([]Snippet, error) {
	return nil, ErrDisabled
}
