package core

import "testing"

func TestCriticAcceptsGroundedAnswer(t *testing.T) {
	c := NewCritic()
	v := c.Review("What was Acme revenue in 2023?", Answer{
		Text:         "Acme revenue reached $120 million in 2023 [S1].",
		UsedSnippets: []string{"pdf://acme-2023"},
	})
	if !v.Accept {
		t.Fatalf("expected accept, got feedback %q", v.Feedback)
	}
}

func TestCriticRejectsEmpty(t *testing.T) {
	c := NewCritic()
	for _, text := range []string{"", "   ", "(No answer)"} {
		if v := c.Review("revenue?", Answer{Text: text}); v.Accept {
			t.Fatalf("accepted empty answer %q", text)
		}
	}
}

func TestCriticRejectsPlaceholders(t *testing.T) {
	c := NewCritic()
	v := c.Review("revenue?", Answer{
		Text:         "Revenue in 2023 was [Insert figure here].",
		UsedSnippets: []string{"pdf://a"},
	})
	if v.Accept {
		t.Fatal("accepted placeholder text")
	}
}

func TestCriticRejectsNoSubstance(t *testing.T) {
	c := NewCritic()
	v := c.Review("revenue growth?", Answer{
		Text:         "The company has seen notable revenue growth over recent periods.",
		UsedSnippets: []string{"pdf://a"},
	})
	if v.Accept {
		t.Fatal("accepted answer with no figures or years")
	}
}

func TestCriticAcceptsHonestUnavailable(t *testing.T) {
	c := NewCritic()
	v := c.Review("private margins?", Answer{
		Text: "Margins are Not publicly available for this private company.",
	})
	if !v.Accept {
		t.Fatalf("an honest unavailable answer must pass: %q", v.Feedback)
	}
}

func TestCriticRejectsOffTopic(t *testing.T) {
	c := NewCritic()
	v := c.Review("What are Globex competitors?", Answer{
		Text:         "The weather in 2023 was mild [S1].",
		UsedSnippets: []string{"web://x"},
	})
	if v.Accept {
		t.Fatal("accepted an off-topic answer")
	}
}

func TestCriticRejectsUngroundedClaim(t *testing.T) {
	c := NewCritic()
	v := c.Review("revenue?", Answer{
		Text: "Revenue was $500 million in 2023.",
	})
	if v.Accept {
		t.Fatal("accepted an uncited claim that is neither inference nor unavailable")
	}

	v = c.Review("revenue?", Answer{
		Text: "By inference from market size, revenue was likely near $500 million in 2023.",
	})
	if !v.Accept {
		t.Fatalf("a declared inference must pass: %q", v.Feedback)
	}
}
