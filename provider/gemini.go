package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/accountplan/config"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// systemInstruction frames every request to the backend. It mirrors the
// account-planning assistant behavior: sourced answers, clean Markdown,
// explicit "Not publicly available" when data is missing.
const systemInstruction = "You are a research-driven, context-aware assistant for company analysis " +
	"and account planning. Retrieve facts from reliable sources, synthesize concise analysis aligned " +
	"with user intent, and include source URLs when citing data. Keep clean Markdown, insert spaces " +
	"between units and numbers (e.g. 'EUR 19.22B'), and never output ASCII graphs. If data is not " +
	"publicly available, say exactly 'Not publicly available'."

// GeminiClient implements Client against the Gemini generateContent API
type GeminiClient struct {
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(cfg config.LLMConfig) *GeminiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate sends a single-turn generateContent request
func (c *GeminiClient) Generate(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	reqBody := struct {
		SystemInstruction content `json:"system_instruction"`
		Contents          []content `json:"contents"`
		GenerationConfig  struct {
			Temperature     float64 `json:"temperature"`
			MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		} `json:"generationConfig"`
	}{
		SystemInstruction: content{Parts: []part{{Text: systemInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	reqBody.GenerationConfig.Temperature = temperature
	reqBody.GenerationConfig.MaxOutputTokens = c.maxTokens

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("gemini timeout: %w", ErrUnavailable)
		}
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if retryableStatus(resp.StatusCode) {
			return "", fmt.Errorf("gemini status %d: %w", resp.StatusCode, ErrUnavailable)
		}
		return "", fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
