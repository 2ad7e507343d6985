package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sitegen/internal/config"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultMaxTokens        = 4096
	defaultTimeout          = 60 * time.Second
	defaultRateLimit        = 2.0
	defaultBurst            = 2
)

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, prompt string, tier stage.ModelTier) (string, error)
}

// Models maps tiers to provider model names.
type Models struct {
	Fast    string
	Quality string
}

// For returns the model for tier. Unknown tiers use the fast model.
func (m Models) For(tier stage.ModelTier) string {
	if tier == stage.TierQuality && m.Quality != "" {
		return m.Quality
	}
	return m.Fast
}

// New builds the client selected by cfg.Provider.
func New(cfg config.GeneratorConfig) (Client, error) {
	models := Models{Fast: cfg.FastModel, Quality: cfg.QualityModel}
	switch strings.ToLower(cfg.Provider) {
	case "", "static":
		return NewStatic(), nil
	case "anthropic":
		return NewAnthropic(AnthropicOptions{
			APIKey:            cfg.APIKey.Value(),
			BaseURL:           cfg.BaseURL,
			Models:            models,
			MaxTokens:         cfg.MaxTokens,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			Timeout:           cfg.HTTPTimeout.Duration(),
		})
	case "openai":
		return NewOpenAI(cfg.APIKey.Value(), cfg.BaseURL, models, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

// classifyStatus maps an HTTP status to a stage error kind.
func classifyStatus(status int, msg string) error {
	err := fmt.Errorf("model API error (%d): %s", status, msg)
	if status == 429 || status >= 500 {
		return stage.Retryable(err)
	}
	return stage.NonRetryable(err)
}

// classifyTransport marks connection failures retryable. Cancellation of
// ctx is left unmarked so the runner sees it as final.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return stage.Retryable(err)
	}
	return stage.Retryable(fmt.Errorf("model API request failed: %w", err))
}
