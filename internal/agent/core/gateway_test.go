package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/accountplan/config"
	"github.com/mohammad-safakhou/accountplan/provider"
)

type providerCall struct {
	model string
	temp  float64
}

type stubProvider struct {
	calls   []providerCall
	replies []string
	errs    []error
}

func (s *stubProvider) Generate(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	i := len(s.calls)
	s.calls = append(s.calls, providerCall{model: model, temp: temperature})
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return reply, err
}

func llmConfig() config.LLMConfig {
	return config.LLMConfig{
		Model:              "primary",
		FallbackModels:     []string{"fallback-a", "fallback-b"},
		Temperature:        0.3,
		TemperatureBackoff: 0.1,
		MaxAttempts:        3,
		Timeout:            time.Second,
	}
}

func TestGatewayFallbackChain(t *testing.T) {
	p := &stubProvider{
		replies: []string{"", "", "answer"},
		errs:    []error{provider.ErrUnavailable, provider.ErrUnavailable, nil},
	}
	g := NewGateway(p, llmConfig(), nil)

	got, err := g.GenerateText(context.Background(), "q")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "answer" {
		t.Fatalf("expected answer, got %q", got)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(p.calls))
	}
	wantModels := []string{"primary", "fallback-a", "fallback-b"}
	for i, c := range p.calls {
		if c.model != wantModels[i] {
			t.Fatalf("call %d used model %s, want %s", i, c.model, wantModels[i])
		}
	}
	// Temperature steps down one backoff per attempt.
	if p.calls[0].temp != 0.3 {
		t.Fatalf("first temp %v", p.calls[0].temp)
	}
	if p.calls[1].temp >= p.calls[0].temp || p.calls[2].temp >= p.calls[1].temp {
		t.Fatalf("temperature did not decrease: %+v", p.calls)
	}
}

func TestGatewayExhaustion(t *testing.T) {
	p := &stubProvider{
		errs: []error{provider.ErrUnavailable, provider.ErrUnavailable, provider.ErrUnavailable},
	}
	g := NewGateway(p, llmConfig(), nil)

	_, err := g.GenerateText(context.Background(), "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(p.calls))
	}
}

func TestGatewayNonRetryableError(t *testing.T) {
	boom := fmt.Errorf("bad request")
	p := &stubProvider{errs: []error{boom}}
	g := NewGateway(p, llmConfig(), nil)

	_, err := g.GenerateText(context.Background(), "q")
	if !errors.Is(err, boom) {
		t.Fatalf("expected the provider error, got %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("non-retryable error must not walk the chain, got %d calls", len(p.calls))
	}
}

func TestGenerateStructuredExtractsEmbeddedJSON(t *testing.T) {
	p := &stubProvider{replies: []string{"Sure! Here you go:\n```json\n{\"overview\": \"acme {builds} things\"}\n``` hope it helps"}}
	g := NewGateway(p, llmConfig(), nil)

	var out struct {
		Overview string `json:"overview"`
	}
	if err := g.GenerateStructured(context.Background(), "q", &out); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.Overview != "acme {builds} things" {
		t.Fatalf("got %q", out.Overview)
	}
}

func TestGenerateStructuredSchemaViolationSingleCall(t *testing.T) {
	p := &stubProvider{replies: []string{"no json here at all"}}
	g := NewGateway(p, llmConfig(), nil)

	var out map[string]string
	err := g.GenerateStructured(context.Background(), "q", &out)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("schema violations must not be retried, got %d calls", len(p.calls))
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"prose {\"a\": {\"b\": 2}} trailing", `{"a": {"b": 2}}`},
		{`{"s": "brace } in string"}`, `{"s": "brace } in string"}`},
		{"no object", ""},
		{"{unbalanced", ""},
	}
	for _, c := range cases {
		if got := extractJSON(c.in); got != c.want {
			t.Fatalf("extractJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
