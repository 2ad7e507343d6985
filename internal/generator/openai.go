package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// OpenAI completes prompts through langchaingo. One model handle is kept
// per tier.
type OpenAI struct {
	models    map[stage.ModelTier]llms.Model
	maxTokens int
}

// NewOpenAI builds langchaingo clients for both tiers.
func NewOpenAI(apiKey, baseURL string, models Models, maxTokens int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key required")
	}
	if models.Fast == "" {
		return nil, errors.New("openai fast model required")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	o := &OpenAI{models: make(map[stage.ModelTier]llms.Model), maxTokens: maxTokens}
	for _, tier := range []stage.ModelTier{stage.TierFast, stage.TierQuality} {
		llm, err := openai.New(
			openai.WithToken(apiKey),
			openai.WithBaseURL(baseURL),
			openai.WithModel(models.For(tier)),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client for %s tier: %w", tier, err)
		}
		o.models[tier] = llm
	}
	return o, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt string, tier stage.ModelTier) (string, error) {
	llm, ok := o.models[tier]
	if !ok {
		llm = o.models[stage.TierFast]
	}
	resp, err := llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithMaxTokens(o.maxTokens), llms.WithTemperature(0.4))
	if err != nil {
		return "", classifyOpenAI(ctx, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", stage.Retryablef("empty response from model")
	}
	return resp.Choices[0].Content, nil
}

var statusInError = regexp.MustCompile(`status code:? (\d{3})`)

// classifyOpenAI recovers the HTTP status from langchaingo's error text.
func classifyOpenAI(ctx context.Context, err error) error {
	if m := statusInError.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return classifyStatus(status, err.Error())
	}
	return classifyTransport(ctx, err)
}
