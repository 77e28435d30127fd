package core

import (
	"log"
	"strings"
)

// Critic applies cheap deterministic checks to a synthesized answer.
// It never calls the LLM; a rejection carries feedback the next
// synthesis attempt folds into its prompt.
type Critic struct {
	logger *log.Logger
}

func NewCritic() *Critic {
	return &Critic{logger: log.New(log.Writer(), "[CRITIC] ", log.LstdFlags)}
}

// placeholders that betray an answer the model never actually wrote.
var placeholders = []string{
	"[Insert",
	"Cite Source]",
	"(Overview)",
	"lorem ipsum",
}

// Review judges one answer against the query that produced it.
func (c *Critic) Review(query string, ans Answer) Verdict {
	text := strings.TrimSpace(ans.Text)
	if text == "" || strings.EqualFold(text, "(No answer)") {
		return Verdict{Feedback: "the answer was empty"}
	}
	for _, p := range placeholders {
		if strings.Contains(text, p) {
			return Verdict{Feedback: "the answer contained placeholder text (" + p + ")"}
		}
	}
	if !hasSubstance(text) {
		return Verdict{Feedback: "the answer contained no concrete figures or years"}
	}
	if !relevant(query, text) {
		return Verdict{Feedback: "the answer did not address the question's key terms"}
	}
	if len(ans.UsedSnippets) == 0 && !strings.Contains(strings.ToLower(text), "inference") &&
		!strings.Contains(text, "Not publicly available") {
		return Verdict{Feedback: "the answer cited no evidence and did not declare itself an inference"}
	}
	return Verdict{Accept: true}
}

// hasSubstance requires at least one digit; "Not publicly available"
// answers are honest and pass too.
func hasSubstance(text string) bool {
	if strings.Contains(text, "Not publicly available") {
		return true
	}
	return strings.IndexFunc(text, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

// relevant checks the answer mentions at least one meaningful query
// token. Questions with no meaningful tokens pass trivially.
func relevant(query, text string) bool {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
