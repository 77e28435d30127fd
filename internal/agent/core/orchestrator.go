package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/accountplan/config"
	"github.com/mohammad-safakhou/accountplan/internal/agent/telemetry"
	"github.com/mohammad-safakhou/accountplan/internal/cache"
)

// Orchestrator owns the per-company sessions and drives the
// plan/retrieve/synthesize/critique loop. It is the only writer to any
// knowledge base; agents see snapshots and return deltas.
type Orchestrator struct {
	cfg         config.ResearchConfig
	gateway     TextGenerator
	planner     *Planner
	retriever   *Retriever
	synthesizer *Synthesizer
	critic      *Critic
	cache       cache.Cache
	cacheTTL    time.Duration
	telemetry   *telemetry.Telemetry
	logger      *log.Logger

	mu       sync.Mutex
	sessions map[string]*KnowledgeBase
}

func NewOrchestrator(cfg config.ResearchConfig, gateway TextGenerator, planner *Planner, retriever *Retriever, synth *Synthesizer, critic *Critic, c cache.Cache, ttl time.Duration, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		gateway:     gateway,
		planner:     planner,
		retriever:   retriever,
		synthesizer: synth,
		critic:      critic,
		cache:       c,
		cacheTTL:    ttl,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
		sessions:    map[string]*KnowledgeBase{},
	}
}

func (o *Orchestrator) session(company string) *KnowledgeBase {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(company))
	kb, ok := o.sessions[key]
	if !ok {
		kb = NewKnowledgeBase(company)
		o.sessions[key] = kb
	}
	return kb
}

// Rebuild discards a company's session so the next request starts from
// an empty knowledge base. Knowledge never shrinks otherwise.
func (o *Orchestrator) Rebuild(company string) {
	o.mu.Lock()
	delete(o.sessions, strings.ToLower(strings.TrimSpace(company)))
	o.mu.Unlock()
}

// AskResult is a conversational answer plus the planner's suggested
// follow-up questions.
type AskResult struct {
	Answer
	FollowUps []string `json:"follow_ups,omitempty"`
}

// Ask answers one question about a company. Rejected attempts re-enter
// the loop with the critic's feedback until the retry budget runs out;
// at that point the last answer goes out flagged low-confidence rather
// than being withheld.
func (o *Orchestrator) Ask(ctx context.Context, company, query, directive string) (AskResult, error) {
	// The timebox bounds research cycles only. Synthesis of whatever the
	// session already knows still runs after it lapses.
	researchCtx, cancel := context.WithTimeout(ctx, o.cfg.Timebox)
	defer cancel()

	kb := o.session(company)
	if err := o.bootstrapOverview(ctx, researchCtx, company, kb); err != nil {
		return AskResult{}, err
	}
	req := AgentRequest{Company: company, Query: query, Directive: directive, KB: kb.Snapshot()}

	var (
		followUps []string
		lastAns   Answer
	)
	for attempt := 0; ; attempt++ {
		req.Retry = attempt

		if researchCtx.Err() != nil {
			o.logger.Printf("timebox exceeded, synthesizing from current knowledge")
		} else if err := o.research(researchCtx, company, kb, &req, &followUps); err != nil {
			// A timebox lapsing mid-cycle degrades to synthesis from
			// whatever was gathered; any other failure is real.
			if researchCtx.Err() == nil {
				return AskResult{}, err
			}
			o.logger.Printf("timebox lapsed mid-research, synthesizing from current knowledge")
		}

		start := time.Now()
		ans, err := o.synthesizer.Synthesize(ctx, req, req.KB.Snippets)
		if o.telemetry != nil {
			o.telemetry.RecordAgentRun("synthesizer", time.Since(start), err)
		}
		if err != nil {
			// No partial answer exists to degrade to.
			return AskResult{}, fmt.Errorf("synthesizer: %w", err)
		}
		lastAns = ans

		verdict := o.critic.Review(query, ans)
		if verdict.Accept {
			return AskResult{Answer: ans, FollowUps: followUps}, nil
		}
		o.logger.Printf("critic rejected attempt %d: %s", attempt+1, verdict.Feedback)
		if o.telemetry != nil {
			o.telemetry.RecordCriticRetry()
		}
		if attempt >= o.cfg.RetryCap {
			break
		}
		req.Feedback = verdict.Feedback
	}

	lastAns.LowConfidence = true
	if strings.TrimSpace(lastAns.Text) == "" {
		// The contract is an annotated answer, never an empty one.
		lastAns.Text = "Not publicly available based on the evidence gathered."
	}
	if o.telemetry != nil {
		o.telemetry.RecordLowConfidence()
	}
	return AskResult{Answer: lastAns, FollowUps: followUps}, nil
}

// research runs one plan/retrieve cycle and folds the delta into the
// session knowledge base.
func (o *Orchestrator) research(ctx context.Context, company string, kb *KnowledgeBase, req *AgentRequest, followUps *[]string) error {
	start := time.Now()
	plan, err := o.planner.Plan(ctx, *req)
	if o.telemetry != nil {
		o.telemetry.RecordAgentRun("planner", time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	if len(plan.FollowUps) > 0 {
		*followUps = plan.FollowUps
	}
	if !plan.NeedRetrieval {
		return nil
	}

	start = time.Now()
	delta, err := o.retriever.Retrieve(ctx, company, plan)
	if o.telemetry != nil {
		o.telemetry.RecordAgentRun("retriever", time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	kb.Merge(delta)
	req.KB = kb.Snapshot()
	return nil
}

// BuildReport produces the full account-plan report. It first tries one
// structured synthesis call; if the model breaks the schema it falls
// back to per-section synthesis through the critic loop. A backend
// outage before the first section exists is terminal, an outage
// mid-fallback marks the remaining sections unavailable and keeps what
// was written.
func (o *Orchestrator) BuildReport(ctx context.Context, company, directive string) (Report, error) {
	// Research is timeboxed; synthesis of what was gathered is not.
	researchCtx, cancel := context.WithTimeout(ctx, o.cfg.Timebox)
	defer cancel()

	kb := o.session(company)
	if err := o.bootstrapOverview(ctx, researchCtx, company, kb); err != nil {
		return Report{}, err
	}

	plan := Plan{NeedRetrieval: true, SubQueries: cannedQueries(company)}
	if directive != "" && len(plan.SubQueries) < o.cfg.MaxSubQueries {
		plan.SubQueries = append(plan.SubQueries, company+" "+directive)
	}
	delta, err := o.retriever.Retrieve(researchCtx, company, plan)
	if err != nil {
		if researchCtx.Err() == nil {
			return Report{}, fmt.Errorf("retriever: %w", err)
		}
		o.logger.Printf("timebox lapsed during retrieval, reporting from current knowledge")
	} else {
		kb.Merge(delta)
	}

	req := AgentRequest{Company: company, Directive: directive, KB: kb.Snapshot()}
	lowConfidence := false

	bodies, err := o.reportBodies(ctx, req, &lowConfidence)
	if err != nil {
		return Report{}, err
	}

	products := o.productsTable(ctx, req)
	series := revenueSeries(req.KB)

	rep := assembleReport(company, directive, bodies, products, series, references(req.KB))
	rep.LowConfidence = lowConfidence
	return rep, nil
}

// reportBodies runs the structured-first, per-section-fallback synthesis
// for the prose sections.
func (o *Orchestrator) reportBodies(ctx context.Context, req AgentRequest, lowConfidence *bool) (map[SectionKind]string, error) {
	start := time.Now()
	structured, err := o.synthesizer.SynthesizeStructured(ctx, req, req.KB.Snippets)
	if o.telemetry != nil {
		o.telemetry.RecordAgentRun("synthesizer", time.Since(start), err)
	}
	if err == nil {
		return sectionsToBodies(structured), nil
	}
	if !errors.Is(err, ErrSchemaViolation) {
		return nil, fmt.Errorf("synthesizer: %w", err)
	}
	o.logger.Printf("structured synthesis failed schema, falling back per section: %v", err)

	bodies := map[SectionKind]string{}
	wrote := false
	for _, kind := range proseSections {
		if kind == SectionDirectiveResponse && req.Directive == "" {
			continue
		}
		body, err := o.fallbackSection(ctx, req, kind, lowConfidence)
		if err != nil {
			if errors.Is(err, ErrUnavailable) && !wrote {
				return nil, fmt.Errorf("synthesizer: %w", err)
			}
			o.logger.Printf("section %s unavailable: %v", kind, err)
			*lowConfidence = true
			continue
		}
		bodies[kind] = body
		wrote = true
	}
	return bodies, nil
}

// fallbackSection runs one section through the same synthesize/critique
// loop the ask path uses. A section the critic never accepts ships as
// the last candidate with the report flagged low-confidence.
func (o *Orchestrator) fallbackSection(ctx context.Context, req AgentRequest, kind SectionKind, lowConfidence *bool) (string, error) {
	query := sectionTitle(kind) + " " + req.Company
	if kind == SectionDirectiveResponse {
		query = req.Directive
	}

	var last Answer
	for attempt := 0; ; attempt++ {
		req.Retry = attempt
		ans, err := o.synthesizer.SynthesizeSection(ctx, req, kind, req.KB.Snippets)
		if err != nil {
			return "", err
		}
		last = ans

		verdict := o.critic.Review(query, ans)
		if verdict.Accept {
			return ans.Text, nil
		}
		o.logger.Printf("critic rejected %s attempt %d: %s", kind, attempt+1, verdict.Feedback)
		if o.telemetry != nil {
			o.telemetry.RecordCriticRetry()
		}
		if attempt >= o.cfg.RetryCap {
			break
		}
		req.Feedback = verdict.Feedback
	}
	*lowConfidence = true
	if o.telemetry != nil {
		o.telemetry.RecordLowConfidence()
	}
	return last.Text, nil
}

// bootstrapOverview fills the session overview once per session, from
// the cache when a prior run already paid for it, otherwise from
// retrieved overview evidence.
func (o *Orchestrator) bootstrapOverview(ctx, researchCtx context.Context, company string, kb *KnowledgeBase) error {
	if kb.Snapshot().Overview != "" {
		return nil
	}

	key := cache.Key(company, "overview")
	if o.cache != nil {
		var cached string
		if err := o.cache.Get(ctx, key, &cached); err == nil {
			kb.SetOverview(cached)
			return nil
		}
	}

	plan := Plan{NeedRetrieval: true, SubQueries: overviewQueries(company)}
	if delta, err := o.retriever.Retrieve(researchCtx, company, plan); err == nil {
		kb.Merge(delta)
	} else if researchCtx.Err() == nil {
		// The overview can still be written; it just loses grounding.
		o.logger.Printf("overview retrieval failed: %v", err)
	}

	snap := kb.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "In 3 sentences, describe the company %q: what it does, its market, and its scale. Plain prose only.\n", company)
	writeContext(&b, snap, snap.Snippets)

	text, err := o.gateway.GenerateText(ctx, b.String())
	if err != nil {
		return fmt.Errorf("overview bootstrap: %w", err)
	}
	overview := cleanText(text)
	kb.SetOverview(overview)

	if o.cache != nil {
		if err := o.cache.Put(ctx, key, overview, o.cacheTTL); err != nil {
			o.logger.Printf("overview cache put failed: %v", err)
		}
	}
	return nil
}

func (o *Orchestrator) productsTable(ctx context.Context, req AgentRequest) *Table {
	table, err := o.synthesizer.Products(ctx, req, req.KB.Snippets)
	if err != nil {
		// The table is supplementary; any failure degrades to an
		// unavailable section rather than failing the report.
		o.logger.Printf("products table unavailable: %v", err)
		return nil
	}
	return &table
}

// revenueSeries charts the currency with the most facts; figures in
// other currencies stay in the financial summary prose rather than
// being mislabeled on one axis.
func revenueSeries(kb KBSnapshot) *RevenueSeries {
	facts := kb.RevenueSeries()
	if len(facts) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, f := range facts {
		counts[f.Currency]++
	}
	currency := facts[0].Currency
	for c, n := range counts {
		if n > counts[currency] {
			currency = c
		}
	}
	s := &RevenueSeries{Currency: currency}
	for _, f := range facts {
		if f.Currency != currency {
			continue
		}
		s.Points = append(s.Points, RevenuePoint{Year: f.Year, Revenue: f.Revenue})
	}
	return s
}

func references(kb KBSnapshot) []string {
	var refs []string
	for _, s := range kb.Snippets {
		refs = append(refs, s.SourceID)
		if len(refs) == 10 {
			break
		}
	}
	return refs
}
