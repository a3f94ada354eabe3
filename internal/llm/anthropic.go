package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicClient summarizes with the Anthropic Messages API.
type AnthropicClient struct {
	api   *anthropic.Client
	model anthropic.Model
	retry RetryConfig
	log   *slog.Logger
}

// NewAnthropicClient creates a summarizer backed by Anthropic.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		api:   &client,
		model: anthropic.Model(model),
		retry: cfg.Retry,
		log:   loggerOrDefault(cfg.Logger),
	}
}

// Summarize sends the request to Claude and parses the bullet reply.
func (c *AnthropicClient) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	systemPrompt, userPrompt := buildPrompt(req)

	var text string
	err := withRetry(ctx, c.retry, c.log, func(ctx context.Context) error {
		msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: int64(maxTokens(req.Kind)),
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return err
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				text = block.Text
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	if text == "" {
		return nil, fmt.Errorf("%w: no text content in API response", ErrMalformedResponse)
	}
	return parseSummary(text)
}
