package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/accountplan/config"
)

// stubGen is a hand-written TextGenerator shared by the agent tests.
type stubGen struct {
	textFn       func(prompt string) (string, error)
	structuredFn func(prompt string, out interface{}) error
	prompts      []string
}

func (s *stubGen) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.textFn == nil {
		return "", fmt.Errorf("unexpected GenerateText call")
	}
	return s.textFn(prompt)
}

func (s *stubGen) GenerateStructured(ctx context.Context, prompt string, out interface{}) error {
	s.prompts = append(s.prompts, prompt)
	if s.structuredFn == nil {
		return fmt.Errorf("unexpected GenerateStructured call")
	}
	return s.structuredFn(prompt, out)
}

func researchConfig() config.ResearchConfig {
	return config.ResearchConfig{
		Timebox:          time.Minute,
		MaxSubQueries:    4,
		MaxSnippets:      20,
		MinCorpusResults: 2,
		RetryCap:         2,
		AdapterTimeout:   time.Second,
	}
}

func TestPlanMissingYearForcesRetrieval(t *testing.T) {
	gen := &stubGen{textFn: func(string) (string, error) {
		return "QUERY: Acme revenue 2024", nil
	}}
	p := NewPlanner(gen, researchConfig(), time.Hour)

	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{
		Snippets: []Snippet{
			{SourceID: "pdf://a", Text: "Acme revenue grew"},
			{SourceID: "pdf://b", Text: "Acme revenue details"},
		},
		Facts: []FinancialFact{{Year: 2023, Revenue: 1, Origin: "corpus"}},
	})

	plan, err := p.Plan(context.Background(), AgentRequest{
		Company: "Acme", Query: "What was Acme revenue in 2024?", KB: kb.Snapshot(),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.NeedRetrieval {
		t.Fatal("a year absent from the knowledge base must force retrieval")
	}
	if len(plan.SubQueries) != 1 || plan.SubQueries[0] != "Acme revenue 2024" {
		t.Fatalf("unexpected sub-queries %v", plan.SubQueries)
	}
}

func TestPlanSkipsRetrievalWhenKnowledgeSuffices(t *testing.T) {
	gen := &stubGen{} // any LLM call would fail the test
	p := NewPlanner(gen, researchConfig(), time.Hour)

	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{
		Snippets: []Snippet{
			{SourceID: "pdf://a", Text: "Acme revenue grew in fiscal 2023"},
			{SourceID: "pdf://b", Text: "Acme revenue breakdown by segment"},
		},
		Facts: []FinancialFact{{Year: 2023, Revenue: 1, Origin: "corpus"}},
	})

	plan, err := p.Plan(context.Background(), AgentRequest{
		Company: "Acme", Query: "What was Acme revenue in 2023?", KB: kb.Snapshot(),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.NeedRetrieval {
		t.Fatal("fresh, relevant knowledge should skip retrieval")
	}
	if len(gen.prompts) != 0 {
		t.Fatal("sufficiency decision must not call the LLM")
	}
}

func TestPlanStaleKnowledgeForcesRetrieval(t *testing.T) {
	gen := &stubGen{textFn: func(string) (string, error) {
		return "QUERY: Acme revenue", nil
	}}
	// Zero freshness makes any snapshot stale.
	p := NewPlanner(gen, researchConfig(), 0)

	kb := NewKnowledgeBase("Acme")
	kb.Merge(RetrievalResult{Snippets: []Snippet{
		{SourceID: "pdf://a", Text: "Acme revenue grew"},
		{SourceID: "pdf://b", Text: "Acme revenue details"},
	}})

	plan, err := p.Plan(context.Background(), AgentRequest{
		Company: "Acme", Query: "Acme revenue?", KB: kb.Snapshot(),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.NeedRetrieval {
		t.Fatal("stale knowledge must force retrieval")
	}
}

func TestPlanUnavailableDegradesToTrivialPlan(t *testing.T) {
	gen := &stubGen{textFn: func(string) (string, error) {
		return "", fmt.Errorf("all models down: %w", ErrUnavailable)
	}}
	p := NewPlanner(gen, researchConfig(), time.Hour)

	plan, err := p.Plan(context.Background(), AgentRequest{
		Company: "Acme", Query: "competitors?", KB: NewKnowledgeBase("Acme").Snapshot(),
	})
	if err != nil {
		t.Fatalf("an unavailable planner LLM must not fail the run: %v", err)
	}
	if !plan.NeedRetrieval || len(plan.SubQueries) != 1 {
		t.Fatalf("expected trivial single-query plan, got %+v", plan)
	}
}

func TestPlanEmptyReplyUsesCannedQueries(t *testing.T) {
	gen := &stubGen{textFn: func(string) (string, error) { return "I cannot help with that.", nil }}
	p := NewPlanner(gen, researchConfig(), time.Hour)

	plan, err := p.Plan(context.Background(), AgentRequest{
		Company: "Acme", Query: "competitors?", KB: NewKnowledgeBase("Acme").Snapshot(),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.SubQueries) == 0 {
		t.Fatal("expected canned queries when the model returns none")
	}
	for _, q := range plan.SubQueries {
		if !contains(q, "Acme") {
			t.Fatalf("canned query %q does not mention the company", q)
		}
	}
}

func TestParsePlanCapsAndPrefixes(t *testing.T) {
	text := `QUERY: one
QUERY: two
QUERY: three
QUERY: four
QUERY: five
FOLLOWUP: next question?
FOLLOWUP: another?
FOLLOWUP: too many
noise line`
	plan := parsePlan(text, 4)
	if len(plan.SubQueries) != 4 {
		t.Fatalf("expected 4 sub-queries, got %d", len(plan.SubQueries))
	}
	if len(plan.FollowUps) != 2 {
		t.Fatalf("expected 2 follow-ups, got %d", len(plan.FollowUps))
	}
}

func TestPlanRejectionFeedbackReachesPrompt(t *testing.T) {
	var seen string
	gen := &stubGen{textFn: func(prompt string) (string, error) {
		seen = prompt
		return "QUERY: Acme revenue", nil
	}}
	p := NewPlanner(gen, researchConfig(), time.Hour)

	_, err := p.Plan(context.Background(), AgentRequest{
		Company: "Acme", Query: "revenue?", Retry: 1,
		Feedback: "the answer was empty",
		KB:       NewKnowledgeBase("Acme").Snapshot(),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !contains(seen, "the answer was empty") {
		t.Fatal("critic feedback should be visible to the planner prompt")
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
