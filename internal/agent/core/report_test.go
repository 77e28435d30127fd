package core

import "testing"

func fullBodies() map[SectionKind]string {
	out := map[SectionKind]string{}
	for _, k := range proseSections {
		out[k] = "body for " + string(k)
	}
	return out
}

func TestAssembleReportFixedOrder(t *testing.T) {
	series := &RevenueSeries{Currency: "USD", Points: []RevenuePoint{{Year: 2022, Revenue: 1}, {Year: 2023, Revenue: 2}}}
	table := &Table{Columns: []string{"Product"}, Rows: [][]string{{"Anvils"}}}

	rep := assembleReport("Acme", "grow cloud revenue", fullBodies(), table, series, []string{"pdf://a"})

	if len(rep.Sections) != len(sectionOrder) {
		t.Fatalf("expected %d sections, got %d", len(sectionOrder), len(rep.Sections))
	}
	for i, sec := range rep.Sections {
		if sec.Kind != sectionOrder[i] {
			t.Fatalf("section %d is %s, want %s", i, sec.Kind, sectionOrder[i])
		}
	}
	if rep.Sections[0].Kind != SectionDirectiveResponse {
		t.Fatal("directive response must lead the report")
	}
}

func TestAssembleReportOmitsDirectiveWhenEmpty(t *testing.T) {
	rep := assembleReport("Acme", "", fullBodies(), nil, nil, nil)
	for _, sec := range rep.Sections {
		if sec.Kind == SectionDirectiveResponse {
			t.Fatal("directive response must be omitted without a directive")
		}
	}
	if rep.Sections[0].Kind != SectionOverview {
		t.Fatalf("overview should lead, got %s", rep.Sections[0].Kind)
	}
}

func TestAssembleReportMarksMissingSectionsUnavailable(t *testing.T) {
	bodies := fullBodies()
	delete(bodies, SectionSWOT)

	rep := assembleReport("Acme", "d", bodies, nil, nil, nil)
	var swot, products Section
	for _, sec := range rep.Sections {
		switch sec.Kind {
		case SectionSWOT:
			swot = sec
		case SectionTopProducts:
			products = sec
		}
	}
	if !swot.Unavailable {
		t.Fatal("missing prose section must be marked unavailable")
	}
	if !products.Unavailable {
		t.Fatal("missing table must be marked unavailable")
	}
}

func TestSingleYearSeriesNotPlottable(t *testing.T) {
	series := &RevenueSeries{Currency: "USD", Points: []RevenuePoint{{Year: 2023, Revenue: 1}}}
	if series.Plottable() {
		t.Fatal("one point must not be plottable")
	}

	rep := assembleReport("Acme", "", fullBodies(), nil, series, nil)
	for _, sec := range rep.Sections {
		if sec.Kind == SectionRevenueGraph {
			if sec.Unavailable {
				t.Fatal("single-year data is available, just not chartable")
			}
			if sec.Body == "" {
				t.Fatal("single-year section should explain why there is no chart")
			}
		}
	}
}
