package core

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// Synthesizer turns the knowledge snapshot plus fresh evidence into
// prose. It has a free-form path for conversational answers and a
// structured path for report sections.
type Synthesizer struct {
	gateway TextGenerator
	logger  *log.Logger
}

func NewSynthesizer(gateway TextGenerator) *Synthesizer {
	return &Synthesizer{
		gateway: gateway,
		logger:  log.New(log.Writer(), "[SYNTHESIZER] ", log.LstdFlags),
	}
}

// StructuredSections is the single-shot report shape the model is asked
// to fill. Any section it cannot support should say so in prose rather
// than be invented.
type StructuredSections struct {
	DirectiveResponse  string `json:"directive_response"`
	Overview           string `json:"overview"`
	Competitors        string `json:"competitors"`
	MarketPosition     string `json:"market_position"`
	FinancialSummary   string `json:"financial_summary"`
	SWOT               string `json:"swot"`
	Strategy           string `json:"strategy"`
	StructuredInsights string `json:"structured_insights"`
}

var citationPattern = regexp.MustCompile(`\[S(\d+)\]`)

// Synthesize answers one question grounded in the evidence set. Snippets
// are numbered [S1].. in the prompt and citations are parsed back out of
// the reply.
func (s *Synthesizer) Synthesize(ctx context.Context, req AgentRequest, snippets []Snippet) (Answer, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer the question below about %s for an account plan.\n", req.Company)
	if req.Directive != "" {
		fmt.Fprintf(&b, "Address this directive first, in its own opening paragraph: %s\n", req.Directive)
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "A previous answer was rejected because: %s. Fix that.\n", req.Feedback)
	}
	fmt.Fprintf(&b, "Question: %s\n\n", req.Query)
	writeContext(&b, req.KB, snippets)
	b.WriteString("\nCite evidence inline as [S1], [S2] and so on. If you rely on reasoning rather than evidence, say \"inference\". If the facts are not in the evidence, say \"Not publicly available\" rather than guessing.\n")

	text, err := s.gateway.GenerateText(ctx, b.String())
	if err != nil {
		return Answer{}, err
	}
	text = cleanText(text)
	return Answer{Text: text, UsedSnippets: parseCitations(text, snippets)}, nil
}

// parseCitations resolves [Sn] markers back to the source ids of the
// numbered snippets, dropping duplicates and out-of-range indexes.
func parseCitations(text string, snippets []Snippet) []string {
	var used []string
	seen := map[string]bool{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		idx, _ := strconv.Atoi(m[1])
		if idx < 1 || idx > len(snippets) {
			continue
		}
		id := snippets[idx-1].SourceID
		if !seen[id] {
			seen[id] = true
			used = append(used, id)
		}
	}
	return used
}

// SynthesizeStructured asks for the whole report in one JSON object.
// A malformed reply surfaces as ErrSchemaViolation and the orchestrator
// falls back to per-section synthesis.
func (s *Synthesizer) SynthesizeStructured(ctx context.Context, req AgentRequest, snippets []Snippet) (StructuredSections, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an account-plan report on %s.\n", req.Company)
	if req.Directive != "" {
		fmt.Fprintf(&b, "The report must open by addressing: %s\n", req.Directive)
	}
	writeContext(&b, req.KB, snippets)
	b.WriteString(`
Respond with ONLY a JSON object with exactly these string keys:
"directive_response", "overview", "competitors", "market_position",
"financial_summary", "swot", "strategy", "structured_insights".
Each value is report-ready prose. Use "Not publicly available" for facts
the evidence does not support.`)

	var out StructuredSections
	if err := s.gateway.GenerateStructured(ctx, b.String(), &out); err != nil {
		return StructuredSections{}, err
	}
	return out, nil
}

// SynthesizeSection is the fallback path: one free-form call per report
// section, with the same citation protocol as Synthesize so the critic
// can judge groundedness.
func (s *Synthesizer) SynthesizeSection(ctx context.Context, req AgentRequest, kind SectionKind, snippets []Snippet) (Answer, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q section of an account-plan report on %s.\n", sectionTitle(kind), req.Company)
	if kind == SectionDirectiveResponse && req.Directive != "" {
		fmt.Fprintf(&b, "The directive to address: %s\n", req.Directive)
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "A previous draft was rejected because: %s. Fix that.\n", req.Feedback)
	}
	writeContext(&b, req.KB, snippets)
	b.WriteString("\nWrite only the section body, no heading. Cite evidence inline as [S1], [S2] and so on. Use \"Not publicly available\" for unsupported facts.\n")

	text, err := s.gateway.GenerateText(ctx, b.String())
	if err != nil {
		return Answer{}, err
	}
	text = cleanText(text)
	return Answer{Text: text, UsedSnippets: parseCitations(text, snippets)}, nil
}

// Products asks for the top-products table as structured output.
func (s *Synthesizer) Products(ctx context.Context, req AgentRequest, snippets []Snippet) (Table, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "List the top products or services of %s.\n", req.Company)
	writeContext(&b, req.KB, snippets)
	b.WriteString(`
Respond with ONLY a JSON object:
{"columns": ["Product", "Segment", "Notes"], "rows": [["...", "...", "..."]]}
At most 5 rows. Use "Not publicly available" where unknown.`)

	var out Table
	if err := s.gateway.GenerateStructured(ctx, b.String(), &out); err != nil {
		return Table{}, err
	}
	if len(out.Columns) == 0 {
		out.Columns = []string{"Product", "Segment", "Notes"}
	}
	return out, nil
}

func writeContext(b *strings.Builder, kb KBSnapshot, snippets []Snippet) {
	if kb.Overview != "" {
		fmt.Fprintf(b, "Company overview: %s\n", kb.Overview)
	}
	if facts := kb.RevenueSeries(); len(facts) > 0 {
		b.WriteString("Known revenue figures:\n")
		for _, f := range facts {
			fmt.Fprintf(b, "  %d: %.0f %s\n", f.Year, f.Revenue, f.Currency)
		}
	}
	if len(snippets) > 0 {
		b.WriteString("Evidence:\n")
		for i, sn := range snippets {
			fmt.Fprintf(b, "[S%d] (%s) %s: %s\n", i+1, sn.Origin, sn.Title, sn.Text)
		}
	}
}

var fencePattern = regexp.MustCompile("(?s)```[a-z]*\n?|```")

// cleanText strips markdown fences and collapses runs of blank lines.
func cleanText(s string) string {
	s = fencePattern.ReplaceAllString(s, "")
	var out []string
	blank := false
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.Join(out, "\n")
}
