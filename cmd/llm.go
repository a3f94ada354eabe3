package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/digest/internal/llm"
)

// llmConfig resolves the provider settings, falling back to the providers'
// conventional environment variables for API keys.
func llmConfig() llm.Config {
	provider := viper.GetString("llm.provider")
	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = viper.GetInt("llm.max_retries")

	cfg := llm.Config{Provider: provider, Retry: retry, Logger: logger}
	switch provider {
	case llm.ProviderAnthropic:
		cfg.APIKey = firstNonEmpty(viper.GetString("anthropic.api_key"), os.Getenv("ANTHROPIC_API_KEY"))
		cfg.Model = viper.GetString("anthropic.model")
	default:
		cfg.APIKey = firstNonEmpty(viper.GetString("openai.api_key"), os.Getenv("OPENAI_API_KEY"))
		cfg.Model = viper.GetString("openai.model")
		cfg.BaseURL = viper.GetString("openai.base_url")
	}
	return cfg
}

func newSummarizer() (llm.Summarizer, error) {
	return llm.New(llmConfig())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
