package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/accountplan/config"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Planner decides whether a request needs fresh retrieval and, if so,
// derives the sub-queries to run. Deterministic checks run first; the
// LLM is only consulted to phrase sub-queries.
type Planner struct {
	gateway   TextGenerator
	cfg       config.ResearchConfig
	freshness time.Duration
	logger    *log.Logger
}

func NewPlanner(gateway TextGenerator, cfg config.ResearchConfig, freshness time.Duration) *Planner {
	return &Planner{
		gateway:   gateway,
		cfg:       cfg,
		freshness: freshness,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

const plannerPromptTpl = `You are planning research for an account plan on "%s".
Question: %s
%s
Produce up to %d focused search queries, one per line, each prefixed "QUERY: ".
Then up to 2 follow-up questions an account manager would ask next, each prefixed "FOLLOWUP: ".
No other text.`

// Plan inspects the knowledge snapshot and the query. Retrieval is
// skipped only when the snapshot is fresh, relevant, and already covers
// every year the question mentions.
func (p *Planner) Plan(ctx context.Context, req AgentRequest) (Plan, error) {
	if p.sufficient(req) {
		p.logger.Printf("knowledge sufficient for %q, skipping retrieval", req.Query)
		return Plan{NeedRetrieval: false}, nil
	}

	feedback := ""
	if req.Feedback != "" {
		feedback = "A previous answer was rejected because: " + req.Feedback
	}
	prompt := fmt.Sprintf(plannerPromptTpl, req.Company, req.Query, feedback, p.cfg.MaxSubQueries)

	text, err := p.gateway.GenerateText(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			// Degrade to a single literal search rather than failing the run.
			p.logger.Printf("planner llm unavailable, using trivial plan: %v", err)
			return Plan{
				NeedRetrieval: true,
				SubQueries:    []string{strings.TrimSpace(req.Company + " " + req.Query)},
			}, nil
		}
		return Plan{}, err
	}

	plan := parsePlan(text, p.cfg.MaxSubQueries)
	plan.NeedRetrieval = true
	if len(plan.SubQueries) == 0 {
		plan.SubQueries = cannedQueries(req.Company)
		if len(plan.SubQueries) > p.cfg.MaxSubQueries {
			plan.SubQueries = plan.SubQueries[:p.cfg.MaxSubQueries]
		}
	}
	return plan, nil
}

// sufficient is the deterministic gate: a year mentioned in the query
// that the knowledge base has no fact for always forces retrieval.
func (p *Planner) sufficient(req AgentRequest) bool {
	for _, y := range yearPattern.FindAllString(req.Query, -1) {
		year, _ := strconv.Atoi(y)
		if _, ok := req.KB.Facts[year]; !ok {
			return false
		}
	}
	if req.KB.UpdatedAt.IsZero() || time.Since(req.KB.UpdatedAt) > p.freshness {
		return false
	}
	return req.KB.Relevant(req.Query) >= p.cfg.MinCorpusResults
}

func parsePlan(text string, maxQueries int) Plan {
	var plan Plan
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "QUERY:"):
			q := strings.TrimSpace(strings.TrimPrefix(line, "QUERY:"))
			if q != "" && len(plan.SubQueries) < maxQueries {
				plan.SubQueries = append(plan.SubQueries, q)
			}
		case strings.HasPrefix(line, "FOLLOWUP:"):
			f := strings.TrimSpace(strings.TrimPrefix(line, "FOLLOWUP:"))
			if f != "" && len(plan.FollowUps) < 2 {
				plan.FollowUps = append(plan.FollowUps, f)
			}
		}
	}
	return plan
}

// overviewQueries seed the one-time company overview a fresh session
// starts from.
func overviewQueries(company string) []string {
	return []string{
		company + " company overview",
		company + " products and markets",
	}
}

// cannedQueries covers the standard account-plan angles when the model
// gives us nothing usable.
func cannedQueries(company string) []string {
	return []string{
		company + " annual report revenue",
		company + " main competitors market share",
		company + " strategy products news",
	}
}
