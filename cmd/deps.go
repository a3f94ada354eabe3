package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/joescharf/digest/internal/chat"
	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/tracker"
)

// newChatClient builds the Slack client from config. It fails when no bot
// token is configured.
func newChatClient() (*chat.SlackClient, error) {
	token := viper.GetString("slack.bot_token")
	if token == "" {
		return nil, fmt.Errorf("slack.bot_token is not set (config file or DIGEST_SLACK_BOT_TOKEN)")
	}
	return chat.NewSlackClient(chat.Config{
		BotToken:          token,
		HistoryLimit:      viper.GetInt("slack.history_limit"),
		RequestsPerSecond: viper.GetFloat64("slack.requests_per_second"),
		Debug:             verbose,
		Logger:            logger,
	}), nil
}

// newDigestService wires the chat client, summarizer and store into a
// digest.Service. The chat client is returned too for posting and name lookups.
func newDigestService() (*digest.Service, *chat.SlackClient, error) {
	t, err := getTracker()
	if err != nil {
		return nil, nil, err
	}
	pm, err := getProjects()
	if err != nil {
		return nil, nil, err
	}
	sm, err := getSettings()
	if err != nil {
		return nil, nil, err
	}
	return buildDigestService(t, pm, sm)
}

func buildDigestService(t *tracker.Tracker, pm *projects.Manager, sm *settings.Manager) (*digest.Service, *chat.SlackClient, error) {
	client, err := newChatClient()
	if err != nil {
		return nil, nil, err
	}
	summarizer, err := newSummarizer()
	if err != nil {
		return nil, nil, fmt.Errorf("configure summarizer: %w", err)
	}
	return digest.NewService(client, summarizer, sm, pm, t, logger), client, nil
}
