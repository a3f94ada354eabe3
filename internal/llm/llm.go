// Package llm summarizes filtered chat messages with a hosted language model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrMalformedResponse means the model replied with something that is not a
// bullet summary, even after repair.
var ErrMalformedResponse = errors.New("malformed summary response")

// Kind selects the prompt shape for a summary.
type Kind string

const (
	KindChannel Kind = "channel"
	KindProject Kind = "project"
	KindIssue   Kind = "issue"
)

// SummaryRequest is everything a provider needs to produce one digest.
type SummaryRequest struct {
	Kind         Kind
	Project      string
	Channels     []string
	CustomPrompt string
	// Lines are the filtered messages, formatted "[author] text", oldest first.
	Lines []string
	// IssueTypes and Priorities describe issues detected before summarizing.
	IssueTypes []string
	Priorities []string
}

// Bullet is one line of a digest. Link is optional.
type Bullet struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// Summary is a model-produced digest.
type Summary struct {
	Bullets []Bullet `json:"bullets"`
}

// Summarizer produces a Summary for a request.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
}

// Config holds provider settings.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the OpenAI endpoint for compatible services.
	BaseURL string
	Retry   RetryConfig
	Logger  *slog.Logger
}

// New returns the Summarizer for cfg.Provider.
func New(cfg Config) (Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: missing API key", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (use: openai, anthropic)", cfg.Provider)
	}
}

// stripFence removes a surrounding markdown code fence if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseSummary decodes a model reply, repairing near-JSON when needed.
func parseSummary(raw string) (*Summary, error) {
	text := stripFence(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var s Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if err := json.Unmarshal([]byte(repaired), &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	bullets := s.Bullets[:0]
	for _, b := range s.Bullets {
		b.Text = strings.TrimSpace(b.Text)
		if b.Text != "" {
			bullets = append(bullets, b)
		}
	}
	if len(bullets) == 0 {
		return nil, fmt.Errorf("%w: no bullets", ErrMalformedResponse)
	}
	s.Bullets = bullets
	return &s, nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
