package core

import (
	"testing"
)

func TestMergeDedupesOnSourceID(t *testing.T) {
	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{Snippets: []Snippet{
		{SourceID: "pdf://a", Text: "one"},
		{SourceID: "web://b", Text: "two"},
	}})
	kb.Merge(RetrievalResult{Snippets: []Snippet{
		{SourceID: "pdf://a", Text: "one again"},
		{SourceID: "web://c", Text: "three"},
	}})

	snap := kb.Snapshot()
	if len(snap.Snippets) != 3 {
		t.Fatalf("expected 3 snippets, got %d", len(snap.Snippets))
	}
}

func TestMergeCorpusWinsOnFactConflict(t *testing.T) {
	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{Facts: []FinancialFact{
		{Year: 2023, Revenue: 120e6, Origin: "corpus", SourceID: "pdf://a"},
	}})
	kb.Merge(RetrievalResult{Facts: []FinancialFact{
		{Year: 2023, Revenue: 999e6, Origin: "web", SourceID: "web://b"},
		{Year: 2024, Revenue: 150e6, Origin: "web", SourceID: "web://b"},
	}})

	snap := kb.Snapshot()
	if got := snap.Facts[2023].Revenue; got != 120e6 {
		t.Fatalf("corpus fact should win, got revenue %v", got)
	}
	if _, ok := snap.Facts[2024]; !ok {
		t.Fatal("non-conflicting fact should merge")
	}

	// A later corpus figure replaces an earlier web one.
	kb.Merge(RetrievalResult{Facts: []FinancialFact{
		{Year: 2024, Revenue: 160e6, Origin: "corpus", SourceID: "pdf://c"},
	}})
	if got := kb.Snapshot().Facts[2024].Revenue; got != 160e6 {
		t.Fatalf("corpus should replace web fact, got %v", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{
		Snippets: []Snippet{{SourceID: "pdf://a", Text: "one"}},
		Facts:    []FinancialFact{{Year: 2023, Revenue: 1, Origin: "corpus"}},
	})

	snap := kb.Snapshot()
	snap.Snippets[0].Text = "mutated"
	snap.Facts[2023] = FinancialFact{Year: 2023, Revenue: 42}
	delete(snap.Facts, 2023)

	fresh := kb.Snapshot()
	if fresh.Snippets[0].Text != "one" {
		t.Fatal("snapshot mutation leaked into the knowledge base")
	}
	if fresh.Facts[2023].Revenue != 1 {
		t.Fatal("snapshot fact mutation leaked into the knowledge base")
	}
}

func TestOverviewNeverErased(t *testing.T) {
	kb := NewKnowledgeBase("Acme")
	kb.SetOverview("Acme makes anvils.")
	kb.SetOverview("  ")
	if kb.Snapshot().Overview != "Acme makes anvils." {
		t.Fatal("empty overview must not erase an earlier one")
	}
}

func TestRevenueSeriesSorted(t *testing.T) {
	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{Facts: []FinancialFact{
		{Year: 2024, Revenue: 2},
		{Year: 2022, Revenue: 1},
		{Year: 2023, Revenue: 3},
	}})
	series := kb.Snapshot().RevenueSeries()
	if len(series) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Year <= series[i-1].Year {
			t.Fatalf("series out of order: %+v", series)
		}
	}
}
