package slackbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// commandTimeout bounds one slash command, including the LLM call.
const commandTimeout = 2 * time.Minute

// BotConfig holds the Slack credentials for Socket Mode.
type BotConfig struct {
	BotToken string // xoxb-...
	AppToken string // xapp-...
	Debug    bool
}

// responder posts a reply for a command.
type responder interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Bot connects to Slack over Socket Mode and dispatches slash commands.
type Bot struct {
	client     responder
	socketMode *socketmode.Client
	handler    *Handler
	log        *slog.Logger
}

// NewBot validates the tokens and builds a Socket Mode client.
func NewBot(cfg BotConfig, h *Handler, log *slog.Logger) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("slack bot token is required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, errors.New("slack app token (xapp-...) is required for Socket Mode")
	}
	if log == nil {
		log = slog.Default()
	}

	client := slack.New(
		cfg.BotToken,
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	return &Bot{
		client:     client,
		socketMode: socketmode.New(client, socketmode.OptionDebug(cfg.Debug)),
		handler:    h,
		log:        log.With("component", "slackbot"),
	}, nil
}

// Run processes events until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-b.socketMode.Events:
				if !ok {
					return
				}
				b.handleEvent(ctx, evt)
			}
		}
	}()
	return b.socketMode.RunContext(ctx)
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.log.Info("connecting to Socket Mode")
	case socketmode.EventTypeConnected:
		b.log.Info("connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		b.log.Warn("connection error", "data", evt.Data)
	case socketmode.EventTypeSlashCommand:
		sc, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		b.socketMode.Ack(*evt.Request)
		go b.respond(ctx, commandFromSlack(sc))
	}
}

func commandFromSlack(sc slack.SlashCommand) Command {
	return Command{
		Name:        sc.Command,
		Text:        sc.Text,
		UserID:      sc.UserID,
		ChannelID:   sc.ChannelID,
		ChannelName: sc.ChannelName,
		ResponseURL: sc.ResponseURL,
	}
}

// respond runs the command and posts an ephemeral reply to the invoker.
func (b *Bot) respond(ctx context.Context, cmd Command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	start := time.Now()
	reply := b.handler.Handle(ctx, cmd)
	b.log.Info("slash command", "command", cmd.Name, "user", cmd.UserID,
		"channel", cmd.ChannelName, "duration", time.Since(start).Round(time.Millisecond))

	opts := []slack.MsgOption{
		slack.MsgOptionText(reply.Text(), false),
		slack.MsgOptionBlocks(reply.Blocks()...),
	}
	if cmd.ResponseURL != "" {
		opts = append(opts, slack.MsgOptionResponseURL(cmd.ResponseURL, slack.ResponseTypeEphemeral))
	}
	if _, _, err := b.client.PostMessageContext(ctx, cmd.ChannelID, opts...); err != nil {
		b.log.Error("post reply failed", "command", cmd.Name, "error", err)
	}
}
