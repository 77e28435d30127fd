package core

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// KnowledgeBase accumulates everything a session has learned about one
// company. It only grows; agents receive read-only snapshots and hand
// back deltas, and the orchestrator is the single writer.
type KnowledgeBase struct {
	mu        sync.RWMutex
	company   string
	overview  string
	snippets  []Snippet
	bySource  map[string]bool
	facts     map[int]FinancialFact
	updatedAt time.Time
}

// KBSnapshot is a read-only value copy of a knowledge base, safe to hand
// to agents running concurrently with merges.
type KBSnapshot struct {
	Company   string
	Overview  string
	Snippets  []Snippet
	Facts     map[int]FinancialFact
	UpdatedAt time.Time
}

func NewKnowledgeBase(company string) *KnowledgeBase {
	return &KnowledgeBase{
		company:  company,
		bySource: map[string]bool{},
		facts:    map[int]FinancialFact{},
	}
}

// Merge folds a retrieval delta in. Snippets dedupe on source id.
// Conflicting facts for the same year resolve in favor of the corpus;
// otherwise the newer figure wins.
func (kb *KnowledgeBase) Merge(delta RetrievalResult) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	for _, s := range delta.Snippets {
		if kb.bySource[s.SourceID] {
			continue
		}
		kb.bySource[s.SourceID] = true
		kb.snippets = append(kb.snippets, s)
	}
	for _, f := range delta.Facts {
		prev, ok := kb.facts[f.Year]
		if ok && prev.Origin == "corpus" && f.Origin != "corpus" {
			continue
		}
		kb.facts[f.Year] = f
	}
	kb.updatedAt = time.Now()
}

// SetOverview records the company overview. Empty input is ignored so a
// failed bootstrap never erases an earlier one.
func (kb *KnowledgeBase) SetOverview(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	kb.mu.Lock()
	kb.overview = s
	kb.updatedAt = time.Now()
	kb.mu.Unlock()
}

// Snapshot returns a deep value copy.
func (kb *KnowledgeBase) Snapshot() KBSnapshot {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	snap := KBSnapshot{
		Company:   kb.company,
		Overview:  kb.overview,
		Snippets:  make([]Snippet, len(kb.snippets)),
		Facts:     make(map[int]FinancialFact, len(kb.facts)),
		UpdatedAt: kb.updatedAt,
	}
	copy(snap.Snippets, kb.snippets)
	for y, f := range kb.facts {
		snap.Facts[y] = f
	}
	return snap
}

// RevenueSeries returns the known facts ordered by year.
func (s KBSnapshot) RevenueSeries() []FinancialFact {
	out := make([]FinancialFact, 0, len(s.Facts))
	for _, f := range s.Facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Relevant counts snippets sharing at least one token with the query.
func (s KBSnapshot) Relevant(query string) int {
	tokens := queryTokens(query)
	n := 0
	for _, sn := range s.Snippets {
		text := strings.ToLower(sn.Title + " " + sn.Text)
		for tok := range tokens {
			if strings.Contains(text, tok) {
				n++
				break
			}
		}
	}
	return n
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "how": true,
	"is": true, "are": true, "of": true, "in": true, "a": true, "an": true,
	"to": true, "about": true, "their": true, "its": true,
}

func queryTokens(q string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(q)) {
		w = strings.Trim(w, ".,!?\"'()")
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
