package core

import (
	"time"
)

// SectionKind names one report section. The set and order are fixed;
// reports always render in declaration order below.
type SectionKind string

const (
	SectionDirectiveResponse SectionKind = "directive_response"
	SectionOverview          SectionKind = "overview"
	SectionCompetitors       SectionKind = "competitors"
	SectionMarketPosition    SectionKind = "market_position"
	SectionFinancialSummary  SectionKind = "financial_summary"
	SectionSWOT              SectionKind = "swot"
	SectionStrategy          SectionKind = "strategy"
	SectionTopProducts       SectionKind = "top_products"
	SectionRevenueGraph      SectionKind = "revenue_graph"
	SectionInsights          SectionKind = "structured_insights"
)

// sectionOrder is the canonical rendering order. The directive response
// leads when a directive was given and is dropped entirely otherwise.
var sectionOrder = []SectionKind{
	SectionDirectiveResponse,
	SectionOverview,
	SectionCompetitors,
	SectionMarketPosition,
	SectionFinancialSummary,
	SectionSWOT,
	SectionStrategy,
	SectionTopProducts,
	SectionRevenueGraph,
	SectionInsights,
}

var sectionTitles = map[SectionKind]string{
	SectionDirectiveResponse: "Directive Response",
	SectionOverview:          "Overview",
	SectionCompetitors:       "Competitors",
	SectionMarketPosition:    "Market Position",
	SectionFinancialSummary:  "Financial Summary",
	SectionSWOT:              "SWOT",
	SectionStrategy:          "Strategy",
	SectionTopProducts:       "Top Products",
	SectionRevenueGraph:      "Revenue Graph",
	SectionInsights:          "Structured Insights",
}

func sectionTitle(k SectionKind) string { return sectionTitles[k] }

// proseSections are the sections filled from LLM prose; the table and
// graph sections are assembled from structured data instead.
var proseSections = []SectionKind{
	SectionDirectiveResponse,
	SectionOverview,
	SectionCompetitors,
	SectionMarketPosition,
	SectionFinancialSummary,
	SectionSWOT,
	SectionStrategy,
	SectionInsights,
}

// Table is tabular report content.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// RevenuePoint is one year on the revenue graph.
type RevenuePoint struct {
	Year    int     `json:"year"`
	Revenue float64 `json:"revenue"`
}

// RevenueSeries is the revenue-over-time data for the report's graph
// section.
type RevenueSeries struct {
	Currency string         `json:"currency"`
	Points   []RevenuePoint `json:"points"`
}

// Plottable reports whether the series has enough years to chart. A
// single data point renders as text, not a graph.
func (s RevenueSeries) Plottable() bool { return len(s.Points) >= 2 }

// Section is one rendered report section. Unavailable marks a section
// whose synthesis failed after the rest of the report succeeded.
type Section struct {
	Kind        SectionKind    `json:"kind"`
	Title       string         `json:"title"`
	Body        string         `json:"body,omitempty"`
	Table       *Table         `json:"table,omitempty"`
	Series      *RevenueSeries `json:"series,omitempty"`
	Unavailable bool           `json:"unavailable,omitempty"`
}

// Report is the finished account-plan document.
type Report struct {
	Company       string    `json:"company"`
	Directive     string    `json:"directive,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	Sections      []Section `json:"sections"`
	References    []string  `json:"references,omitempty"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
}

// assembleReport lays prose, table, and series out in the canonical
// order. bodies holds prose keyed by section kind; missing entries
// render as unavailable.
func assembleReport(company, directive string, bodies map[SectionKind]string, products *Table, series *RevenueSeries, refs []string) Report {
	rep := Report{
		Company:     company,
		Directive:   directive,
		GeneratedAt: time.Now(),
		References:  refs,
	}
	for _, kind := range sectionOrder {
		if kind == SectionDirectiveResponse && directive == "" {
			continue
		}
		sec := Section{Kind: kind, Title: sectionTitle(kind)}
		switch kind {
		case SectionTopProducts:
			if products == nil {
				sec.Unavailable = true
			} else {
				sec.Table = products
			}
		case SectionRevenueGraph:
			if series == nil || len(series.Points) == 0 {
				sec.Unavailable = true
			} else {
				sec.Series = series
				if !series.Plottable() {
					sec.Body = "Only one year of revenue data is available; not enough to chart."
				}
			}
		default:
			body, ok := bodies[kind]
			if !ok || body == "" {
				sec.Unavailable = true
			} else {
				sec.Body = body
			}
		}
		rep.Sections = append(rep.Sections, sec)
	}
	return rep
}

// sectionsToBodies flattens a structured synthesis result into the
// per-kind prose map the assembler consumes.
func sectionsToBodies(s StructuredSections) map[SectionKind]string {
	return map[SectionKind]string{
		SectionDirectiveResponse: s.DirectiveResponse,
		SectionOverview:          s.Overview,
		SectionCompetitors:       s.Competitors,
		SectionMarketPosition:    s.MarketPosition,
		SectionFinancialSummary:  s.FinancialSummary,
		SectionSWOT:              s.SWOT,
		SectionStrategy:          s.Strategy,
		SectionInsights:          s.StructuredInsights,
	}
}
