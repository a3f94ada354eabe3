// Package chat reads channel history from Slack and posts digests back.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/joescharf/digest/internal/models"
)

var (
	// ErrChannelNotFound means the channel does not exist or the bot is not a member.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrTransient marks rate limits and network failures worth retrying later.
	ErrTransient = errors.New("transient chat error")
)

// DefaultHistoryLimit is the maximum number of messages read per channel.
const DefaultHistoryLimit = 200

// slackAPI is the subset of *slack.Client used here.
type slackAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Config configures a SlackClient.
type Config struct {
	BotToken          string
	HistoryLimit      int
	RequestsPerSecond float64
	Debug             bool
	Logger            *slog.Logger
}

// SlackClient fetches channel history and posts messages.
type SlackClient struct {
	api          slackAPI
	limiter      *rate.Limiter
	historyLimit int
	log          *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	channels map[string]string // name -> ID
	users    map[string]string // ID -> display name
}

// NewSlackClient creates a client from a bot token.
func NewSlackClient(cfg Config) *SlackClient {
	api := slack.New(cfg.BotToken, slack.OptionDebug(cfg.Debug))
	return newSlackClient(api, cfg)
}

func newSlackClient(api slackAPI, cfg Config) *SlackClient {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SlackClient{
		api:          api,
		limiter:      rate.NewLimiter(rate.Limit(rps), 3),
		historyLimit: limit,
		log:          log,
		now:          time.Now,
		channels:     make(map[string]string),
		users:        make(map[string]string),
	}
}

var channelIDPattern = regexp.MustCompile(`^[CGD][A-Z0-9]{6,}$`)

// mapError maps Slack failures onto package errors. Network failures, rate
// limits and 5xx responses become ErrTransient.
func mapError(err error, channel string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Errorf("%w: rate limited, retry after %s", ErrTransient, rl.RetryAfter)
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) && (sc.Code == http.StatusTooManyRequests || sc.Code >= 500) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	code := err.Error()
	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		code = se.Err
	}
	switch code {
	case "channel_not_found", "not_in_channel":
		return fmt.Errorf("%w: #%s", ErrChannelNotFound, channel)
	case "ratelimited", "fatal_error", "internal_error", "service_unavailable", "request_timeout":
		return fmt.Errorf("%w: %s", ErrTransient, code)
	}
	return err
}

func (c *SlackClient) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// ResolveChannel returns the channel ID for a name or ID, with or without '#'.
func (c *SlackClient) ResolveChannel(ctx context.Context, channel string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(channel), "#")
	if channelIDPattern.MatchString(name) {
		return name, nil
	}

	c.mu.Lock()
	id, ok := c.channels[name]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	cursor := ""
	for {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
		chans, next, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           200,
			Types:           []string{"public_channel", "private_channel"},
		})
		if err != nil {
			return "", mapError(err, name)
		}
		c.mu.Lock()
		for _, ch := range chans {
			c.channels[ch.Name] = ch.ID
		}
		id, ok = c.channels[name]
		c.mu.Unlock()
		if ok {
			return id, nil
		}
		if next == "" {
			return "", fmt.Errorf("%w: #%s", ErrChannelNotFound, name)
		}
		cursor = next
	}
}

// UserName returns the display name for a user ID, falling back to the ID.
func (c *SlackClient) UserName(ctx context.Context, userID string) string {
	if userID == "" {
		return "unknown"
	}
	c.mu.Lock()
	name, ok := c.users[userID]
	c.mu.Unlock()
	if ok {
		return name
	}

	name = userID
	if err := c.wait(ctx); err == nil {
		u, err := c.api.GetUserInfoContext(ctx, userID)
		switch {
		case err != nil:
			c.log.Debug("user lookup failed", "user", userID, "error", err)
		case u.Profile.DisplayName != "":
			name = u.Profile.DisplayName
		case u.RealName != "":
			name = u.RealName
		case u.Name != "":
			name = u.Name
		}
	}

	c.mu.Lock()
	c.users[userID] = name
	c.mu.Unlock()
	return name
}

// Permalink builds a link that opens a message in Slack.
func Permalink(channelID, ts string) string {
	return fmt.Sprintf("https://slack.com/app_redirect?channel=%s&message_ts=%s", channelID, ts)
}

// ParseTS converts a Slack "seconds.micros" timestamp.
func ParseTS(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var ns int64
	if frac != "" {
		frac = (frac + "000000000")[:9]
		ns, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, ns).UTC()
}

// FetchMessages returns up to HistoryLimit regular messages from the last
// hours, oldest first. Joins, bot messages and other subtypes are skipped.
func (c *SlackClient) FetchMessages(ctx context.Context, channel string, hours int) ([]models.Message, error) {
	name := strings.TrimPrefix(strings.TrimSpace(channel), "#")
	id, err := c.ResolveChannel(ctx, name)
	if err != nil {
		return nil, err
	}

	oldest := c.now().Add(-time.Duration(hours) * time.Hour)
	params := &slack.GetConversationHistoryParameters{
		ChannelID: id,
		Oldest:    strconv.FormatInt(oldest.Unix(), 10),
		Limit:     min(c.historyLimit, 200),
	}

	var out []models.Message
	for len(out) < c.historyLimit {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, mapError(err, name)
		}
		for _, m := range resp.Messages {
			if m.SubType != "" || strings.TrimSpace(m.Text) == "" {
				continue
			}
			out = append(out, models.Message{
				Text:      m.Text,
				Channel:   name,
				Author:    c.UserName(ctx, m.User),
				AuthorID:  m.User,
				Timestamp: ParseTS(m.Timestamp),
				MessageTS: m.Timestamp,
				Permalink: Permalink(id, m.Timestamp),
			})
			if len(out) == c.historyLimit {
				break
			}
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}

	// Slack returns newest first.
	slices.Reverse(out)
	c.log.Debug("fetched history", "channel", name, "messages", len(out), "hours", hours)
	return out, nil
}

// PostText posts mrkdwn text to a channel.
func (c *SlackClient) PostText(ctx context.Context, channel, text string) error {
	id, err := c.ResolveChannel(ctx, channel)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, _, err = c.api.PostMessageContext(ctx, id, slack.MsgOptionText(text, false))
	return mapError(err, channel)
}
