package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/accountplan/config"
	"github.com/mohammad-safakhou/accountplan/internal/agent/telemetry"
	"github.com/mohammad-safakhou/accountplan/provider"
)

// TextGenerator is the LLM surface the agents program against.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, out interface{}) error
}

// Gateway wraps the provider client with model fallback and temperature
// backoff. Each attempt moves one model down the chain and lowers the
// temperature one step.
type Gateway struct {
	client    provider.Client
	cfg       config.LLMConfig
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewGateway(client provider.Client, cfg config.LLMConfig, tel *telemetry.Telemetry) *Gateway {
	return &Gateway{
		client:    client,
		cfg:       cfg,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags),
	}
}

func (g *Gateway) models() []string {
	out := []string{g.cfg.Model}
	out = append(out, g.cfg.FallbackModels...)
	if len(out) > g.cfg.MaxAttempts {
		out = out[:g.cfg.MaxAttempts]
	}
	return out
}

// GenerateText asks the backend for a completion, walking the fallback
// chain on transient failure. A context already past its deadline stops
// the walk immediately.
func (g *Gateway) GenerateText(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt, model := range g.models() {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		temp := g.cfg.Temperature - float64(attempt)*g.cfg.TemperatureBackoff
		if temp < 0 {
			temp = 0
		}
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		start := time.Now()
		text, err := g.client.Generate(callCtx, model, prompt, temp)
		cancel()
		if g.telemetry != nil {
			g.telemetry.RecordLLMCall(model, time.Since(start), err)
		}
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, provider.ErrUnavailable) && !errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		g.logger.Printf("model %s unavailable (attempt %d): %v", model, attempt+1, err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// GenerateStructured runs a single completion and decodes the first JSON
// object in it into out. A malformed reply is a schema violation; the
// caller decides whether to fall back, the gateway never re-asks.
func (g *Gateway) GenerateStructured(ctx context.Context, prompt string, out interface{}) error {
	text, err := g.GenerateText(ctx, prompt)
	if err != nil {
		return err
	}
	raw := extractJSON(text)
	if raw == "" {
		return fmt.Errorf("%w: no JSON object in response", ErrSchemaViolation)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// extractJSON pulls the first balanced top-level JSON object out of a
// model reply, tolerating prose and markdown fences around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
