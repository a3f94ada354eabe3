package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_Channel(t *testing.T) {
	system, user := buildPrompt(SummaryRequest{
		Kind:  KindChannel,
		Lines: []string{"[ana] firmware 2.1 flashed", "[bo] looks good"},
	})

	assert.Contains(t, system, "exactly 5 bullets")
	assert.Contains(t, system, "30 words")
	assert.Contains(t, system, `{"bullets":[{"text":"...","link":""}]}`)
	assert.Contains(t, user, "[ana] firmware 2.1 flashed\n[bo] looks good")
	assert.NotContains(t, user, "Detected issue context")
}

func TestBuildPrompt_Project(t *testing.T) {
	system, _ := buildPrompt(SummaryRequest{
		Kind:     KindProject,
		Project:  "rover",
		Channels: []string{"hardware", "firmware"},
		Lines:    []string{"[ana] rev C approved"},
	})

	assert.Contains(t, system, "PROJECT rover")
	assert.Contains(t, system, "2 channels: #hardware, #firmware")
	assert.Contains(t, system, "exactly 6 bullets")
	assert.Contains(t, system, "35 words")
}

func TestBuildPrompt_IssueContext(t *testing.T) {
	system, user := buildPrompt(SummaryRequest{
		Kind:       KindIssue,
		Lines:      []string{"[ana] thermal failure on rev B"},
		IssueTypes: []string{"failure", "hardware"},
		Priorities: []string{"critical"},
	})

	assert.Contains(t, system, "40 words")
	assert.Contains(t, system, "🔴")
	assert.Contains(t, user, "Issue types: failure, hardware")
	assert.Contains(t, user, "Priorities: critical")
}

func TestBuildPrompt_CustomPromptAppended(t *testing.T) {
	system, _ := buildPrompt(SummaryRequest{Kind: KindChannel, CustomPrompt: "  Focus on deadlines. "})
	assert.Contains(t, system, "Focus on deadlines.")
	assert.Contains(t, system, "exactly 5 bullets")
}

func TestBuildPrompt_UnknownKindFallsBackToChannel(t *testing.T) {
	system, _ := buildPrompt(SummaryRequest{Kind: "weird"})
	assert.Contains(t, system, "exactly 5 bullets")
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Bullet
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"bullets":[{"text":"Board approved","link":""}]}`,
			want: []Bullet{{Text: "Board approved"}},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"bullets\":[{\"text\":\"A\",\"link\":\"https://x\"}]}\n```",
			want: []Bullet{{Text: "A", Link: "https://x"}},
		},
		{
			name: "trailing comma repaired",
			raw:  `{"bullets":[{"text":"A","link":""},]}`,
			want: []Bullet{{Text: "A"}},
		},
		{
			name: "blank bullets dropped",
			raw:  `{"bullets":[{"text":"  "},{"text":"B"}]}`,
			want: []Bullet{{Text: "B"}},
		},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "no bullets", raw: `{"bullets":[]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSummary(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Bullets)
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(Config{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, s)

	s, err = New(Config{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, s)

	_, err = New(Config{Provider: "other", APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, retryable(&openai.APIError{HTTPStatusCode: 400}))
	assert.True(t, retryable(&openai.RequestError{Err: errors.New("eof")}))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(errors.New("boom")))
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), cfg, loggerOrDefault(nil), func(context.Context) error {
			calls++
			if calls < 3 {
				return &openai.APIError{HTTPStatusCode: 500}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), cfg, loggerOrDefault(nil), func(context.Context) error {
			calls++
			return &openai.APIError{HTTPStatusCode: 401}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("budget exhausted", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), cfg, loggerOrDefault(nil), func(context.Context) error {
			calls++
			return &openai.APIError{HTTPStatusCode: 429}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestRetryDelayCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10}
	assert.Equal(t, time.Second, cfg.delay(0))
	assert.Equal(t, 5*time.Second, cfg.delay(3))
}
