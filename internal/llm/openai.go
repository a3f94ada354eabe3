package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4.1-2025-04-14"

// OpenAIClient summarizes with the OpenAI chat completions API or any
// compatible endpoint.
type OpenAIClient struct {
	api   *openai.Client
	model string
	retry RetryConfig
	log   *slog.Logger
}

// NewOpenAIClient creates a summarizer backed by OpenAI.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		api:   openai.NewClientWithConfig(clientConfig),
		model: model,
		retry: cfg.Retry,
		log:   loggerOrDefault(cfg.Logger),
	}
}

// Summarize sends the request in JSON mode and parses the bullet reply.
func (c *OpenAIClient) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	systemPrompt, userPrompt := buildPrompt(req)

	var content string
	err := withRetry(ctx, c.retry, c.log, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			MaxTokens:   maxTokens(req.Kind),
			Temperature: 0.3,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: no choices in API response", ErrMalformedResponse)
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call: %w", err)
	}
	return parseSummary(content)
}
