package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// AnthropicOptions configures the Anthropic client.
type AnthropicOptions struct {
	APIKey            string
	BaseURL           string
	Models            Models
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Anthropic calls the Messages API. Retries belong to the stage runner, so
// each Complete is a single request.
type Anthropic struct {
	apiKey     string
	baseURL    string
	models     Models
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic validates opts and returns a client.
func NewAnthropic(opts AnthropicOptions) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic API key required")
	}
	if opts.Models.Fast == "" {
		return nil, errors.New("anthropic fast model required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultAnthropicBaseURL
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Anthropic{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		models:     opts.Models,
		maxTokens:  opts.MaxTokens,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}, nil
}

func (a *Anthropic) Complete(ctx context.Context, prompt string, tier stage.ModelTier) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       a.models.For(tier),
		MaxTokens:   a.maxTokens,
		System:      systemPrompt,
		Temperature: 0.4,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", stage.NonRetryable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", stage.NonRetryable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.apiKey)
	req.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", classifyTransport(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		var apiErr anthropicError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", classifyStatus(resp.StatusCode, msg)
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", stage.NonRetryable(fmt.Errorf("parse response: %w", err))
	}
	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return "", stage.Retryablef("empty response from model (stop reason %q)", out.StopReason)
	}
	return text.String(), nil
}
