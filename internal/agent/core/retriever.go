package core

import (
	"context"
	"errors"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/accountplan/config"
	"github.com/mohammad-safakhou/accountplan/internal/agent/telemetry"
	"github.com/mohammad-safakhou/accountplan/internal/cache"
)

// Retriever fans sub-queries out to the corpus index and the web search
// adapter and returns a deduplicated, capped evidence set. Results are
// cached per (company, sub-query set).
type Retriever struct {
	corpus    SnippetSearcher
	web       SnippetSearcher
	cache     cache.Cache
	cfg       config.ResearchConfig
	ttl       time.Duration
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewRetriever(corpus, web SnippetSearcher, c cache.Cache, cfg config.ResearchConfig, ttl time.Duration, tel *telemetry.Telemetry) *Retriever {
	return &Retriever{
		corpus:    corpus,
		web:       web,
		cache:     c,
		cfg:       cfg,
		ttl:       ttl,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags),
	}
}

// Retrieve executes the plan's sub-queries concurrently. The corpus is
// authoritative; web results only top up sub-queries where the corpus
// came back thin. A disabled source contributes nothing and is not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, company string, plan Plan) (RetrievalResult, error) {
	key := cache.Key(company, "retrieval", plan.SubQueries...)
	if r.cache != nil {
		var cached RetrievalResult
		err := r.cache.Get(ctx, key, &cached)
		if err == nil {
			if r.telemetry != nil {
				r.telemetry.RecordCache("hit")
			}
			return cached, nil
		}
		if r.telemetry != nil {
			if errors.Is(err, cache.ErrExpired) {
				r.telemetry.RecordCache("expired")
			} else {
				r.telemetry.RecordCache("miss")
			}
		}
	}

	var (
		mu       sync.Mutex
		snippets []Snippet
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sq := range plan.SubQueries {
		sq := sq
		g.Go(func() error {
			got, err := r.searchOne(gctx, sq)
			if err != nil {
				return err
			}
			mu.Lock()
			snippets = append(snippets, got...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RetrievalResult{}, err
	}

	res := RetrievalResult{Snippets: dedupe(snippets, r.cfg.MaxSnippets)}
	for _, s := range res.Snippets {
		res.Facts = append(res.Facts, extractFacts(s)...)
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, res, r.ttl); err != nil {
			r.logger.Printf("cache put failed: %v", err)
		}
	}
	return res, nil
}

func (r *Retriever) searchOne(ctx context.Context, q string) ([]Snippet, error) {
	sctx, cancel := context.WithTimeout(ctx, r.cfg.AdapterTimeout)
	defer cancel()

	out, err := r.corpus.Search(sctx, q, r.cfg.MaxSnippets)
	if err != nil && !errors.Is(err, ErrDisabled) {
		return nil, err
	}
	if len(out) >= r.cfg.MinCorpusResults || r.web == nil {
		return out, nil
	}

	web, err := r.web.Search(sctx, q, r.cfg.MinCorpusResults)
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			r.logger.Printf("web search disabled, corpus-only for %q", q)
			return out, nil
		}
		// Web flakiness must not sink a run that has corpus evidence.
		r.logger.Printf("web search failed for %q: %v", q, err)
		return out, nil
	}
	return append(out, web...), nil
}

// dedupe keeps the best-scoring snippet per source id, corpus ahead of
// web, and caps the result.
func dedupe(in []Snippet, max int) []Snippet {
	seen := map[string]bool{}
	var out []Snippet
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Origin != in[j].Origin {
			return in[i].Origin == "corpus"
		}
		return in[i].Score > in[j].Score
	})
	for _, s := range in {
		if seen[s.SourceID] {
			continue
		}
		seen[s.SourceID] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

var revenuePattern = regexp.MustCompile(`(?i)(?:revenue|sales|turnover)[^.\n]{0,80}?(\$|usd|eur|€)?\s?(\d[\d.,]*)\s*(billion|million|bn|m)\b`)

var sentencePattern = regexp.MustCompile(`[.!?](?:\s+|$)`)

// extractFacts pulls "revenue ... $N billion" style figures out of a
// snippet, pairing each with a year mentioned in the same sentence.
// Sentences split on terminal punctuation so decimals survive intact.
func extractFacts(s Snippet) []FinancialFact {
	var facts []FinancialFact
	for _, sentence := range sentencePattern.Split(s.Text, -1) {
		m := revenuePattern.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}
		years := yearPattern.FindAllString(sentence, -1)
		if len(years) == 0 {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(m[3]) {
		case "billion", "bn":
			amount *= 1e9
		case "million", "m":
			amount *= 1e6
		}
		currency := "USD"
		if m[1] == "€" || strings.EqualFold(m[1], "eur") {
			currency = "EUR"
		}
		year, _ := strconv.Atoi(years[0])
		facts = append(facts, FinancialFact{
			Year:     year,
			Revenue:  amount,
			Currency: currency,
			Origin:   s.Origin,
			SourceID: s.SourceID,
		})
	}
	return facts
}
