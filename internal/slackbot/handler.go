// Package slackbot answers digest slash commands over Slack Socket Mode.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joescharf/digest/internal/chat"
	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/tracker"
)

// Slash command names.
const (
	CmdDigest  = "/digest"
	CmdConfig  = "/digest-config"
	CmdProject = "/digest-project"
	CmdIssues  = "/digest-issues"
)

const maxListed = 15

// Command is a parsed slash command invocation.
type Command struct {
	Name        string
	Text        string
	UserID      string
	ChannelID   string
	ChannelName string
	ResponseURL string
}

// UserNamer resolves a chat user ID to a display name.
type UserNamer interface {
	UserName(ctx context.Context, userID string) string
}

// Handler executes slash commands against one user's partition.
type Handler struct {
	digests    *digest.Service
	tracker    *tracker.Tracker
	projects   *projects.Manager
	settings   *settings.Manager
	names      UserNamer
	includeOwn bool
}

// NewHandler creates a Handler. When includeOwn is false, the invoking
// user's own messages are left out of digests.
func NewHandler(d *digest.Service, t *tracker.Tracker, p *projects.Manager, s *settings.Manager, names UserNamer, includeOwn bool) *Handler {
	return &Handler{digests: d, tracker: t, projects: p, settings: s, names: names, includeOwn: includeOwn}
}

// Handle runs one command and always returns something to show the user.
func (h *Handler) Handle(ctx context.Context, cmd Command) Reply {
	var (
		r   Reply
		err error
	)
	switch cmd.Name {
	case CmdDigest:
		r, err = h.handleDigest(ctx, cmd)
	case CmdConfig:
		r, err = h.handleConfig(ctx, cmd)
	case CmdProject:
		r, err = h.handleProject(ctx, cmd)
	case CmdIssues:
		r, err = h.handleIssues(ctx, cmd)
	default:
		err = fmt.Errorf("%w: unknown command %s", models.ErrValidation, cmd.Name)
	}
	if err != nil {
		return errorReply(err)
	}
	return r
}

func errorReply(err error) Reply {
	msg := err.Error()
	switch {
	case errors.Is(err, chat.ErrChannelNotFound):
		msg = "I can't read that channel. Invite me with `/invite @digest` and try again."
	case errors.Is(err, chat.ErrTransient):
		msg = "Slack is rate limiting me right now. Try again in a minute."
	}
	return Reply{Header: "❌ Error", Lines: []string{msg}}
}

func (h *Handler) channel(cmd Command) string {
	if cmd.ChannelName != "" {
		return cmd.ChannelName
	}
	return cmd.ChannelID
}

// excluded returns the Slack user id whose messages a digest should skip.
func (h *Handler) excluded(cmd Command) string {
	if h.includeOwn {
		return ""
	}
	return cmd.UserID
}

func parseHours(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !models.ValidHours(n) {
		return 0, fmt.Errorf("%w: hours must be a number between %d and %d", models.ErrValidation, models.MinHours, models.MaxHours)
	}
	return n, nil
}

// splitList splits "a,b c" style arguments into items.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, "“", "'"} {
		s = strings.TrimPrefix(s, q)
	}
	for _, q := range []string{`"`, "”", "'"} {
		s = strings.TrimSuffix(s, q)
	}
	return strings.TrimSpace(s)
}

// /digest [hours]
func (h *Handler) handleDigest(ctx context.Context, cmd Command) (Reply, error) {
	hours := 0
	if arg := strings.TrimSpace(cmd.Text); arg != "" {
		var err error
		if hours, err = parseHours(arg); err != nil {
			return Reply{}, err
		}
	}
	res, err := h.digests.ChannelDigest(ctx, digest.Request{
		User:            cmd.UserID,
		Channels:        []string{h.channel(cmd)},
		Hours:           hours,
		ExcludeAuthorID: h.excluded(cmd),
	})
	if err != nil {
		return Reply{}, err
	}
	return RenderDigest(DigestTitle(res), res), nil
}

// /digest-config show | prompt "..." | keywords a,b | hours N | reset
func (h *Handler) handleConfig(ctx context.Context, cmd Command) (Reply, error) {
	sub, rest, _ := strings.Cut(strings.TrimSpace(cmd.Text), " ")
	rest = strings.TrimSpace(rest)

	var (
		st  models.Settings
		err error
	)
	switch strings.ToLower(sub) {
	case "", "show":
		st, err = h.settings.Get(ctx, cmd.UserID)
	case "prompt":
		st, err = h.settings.SetPrompt(ctx, cmd.UserID, unquote(rest))
	case "keywords":
		st, err = h.settings.SetKeywords(ctx, cmd.UserID, splitList(rest))
	case "hours":
		var n int
		if n, err = parseHours(rest); err == nil {
			st, err = h.settings.SetHours(ctx, cmd.UserID, n)
		}
	case "reset":
		st, err = h.settings.Reset(ctx, cmd.UserID)
	default:
		return configHelp(), nil
	}
	if err != nil {
		return Reply{}, err
	}
	return settingsReply(st), nil
}

// /digest-project create name #a,#b [kw...] | list | config name |
// activate name | deactivate name | delete name | <name> [hours]
func (h *Handler) handleProject(ctx context.Context, cmd Command) (Reply, error) {
	args := strings.Fields(cmd.Text)
	if len(args) == 0 {
		return projectHelp(), nil
	}

	switch strings.ToLower(args[0]) {
	case "create":
		if len(args) < 3 {
			return Reply{}, fmt.Errorf("%w: usage: /digest-project create <name> #ch1,#ch2 [keywords...]", models.ErrValidation)
		}
		p, err := h.projects.Create(ctx, cmd.UserID, args[1], splitList(args[2]), splitList(strings.Join(args[3:], " ")))
		if err != nil {
			return Reply{}, err
		}
		r := projectReply(p)
		r.Header = "✅ Created project " + p.Name
		return r, nil
	case "list":
		list, err := h.projects.List(ctx, cmd.UserID)
		if err != nil {
			return Reply{}, err
		}
		return projectListReply(list), nil
	case "config", "activate", "deactivate", "delete":
		if len(args) < 2 {
			return Reply{}, fmt.Errorf("%w: usage: /digest-project %s <name>", models.ErrValidation, args[0])
		}
		return h.projectAction(ctx, cmd.UserID, strings.ToLower(args[0]), args[1])
	}

	hours := 0
	if len(args) > 1 {
		var err error
		if hours, err = parseHours(args[1]); err != nil {
			return Reply{}, err
		}
	}
	res, err := h.digests.ProjectDigest(ctx, cmd.UserID, args[0], hours, h.excluded(cmd))
	if err != nil {
		return Reply{}, err
	}
	return RenderDigest(DigestTitle(res), res), nil
}

func (h *Handler) projectAction(ctx context.Context, user, action, name string) (Reply, error) {
	var (
		p   *models.Project
		err error
	)
	switch action {
	case "config":
		p, err = h.projects.Get(ctx, user, name)
	case "activate":
		p, err = h.projects.Activate(ctx, user, name)
	case "deactivate":
		p, err = h.projects.Deactivate(ctx, user, name)
	case "delete":
		if err = h.projects.Delete(ctx, user, name); err != nil {
			return Reply{}, err
		}
		return Reply{Header: "🗑️ Deleted project " + name}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return projectReply(p), nil
}

// /digest-issues scan [hours] | list [status] | stats | search <q> | update <id> <status>
func (h *Handler) handleIssues(ctx context.Context, cmd Command) (Reply, error) {
	args := strings.Fields(cmd.Text)
	if len(args) == 0 {
		return issuesHelp(), nil
	}

	switch strings.ToLower(args[0]) {
	case "scan":
		hours := 0
		if len(args) > 1 {
			var err error
			if hours, err = parseHours(args[1]); err != nil {
				return Reply{}, err
			}
		}
		res, err := h.digests.IssueDigest(ctx, digest.Request{
			User:            cmd.UserID,
			Channels:        []string{h.channel(cmd)},
			Hours:           hours,
			ExcludeAuthorID: h.excluded(cmd),
		}, true)
		if err != nil {
			return Reply{}, err
		}
		r := RenderDigest(DigestTitle(res), res)
		r.Lines = append(r.Lines, fmt.Sprintf("_Tracked %d new issues_", len(res.Created)))
		return r, nil

	case "list":
		var f models.IssueFilter
		if len(args) > 1 {
			f.Status = models.IssueStatus(strings.ToLower(args[1]))
		}
		list, err := h.tracker.List(ctx, cmd.UserID, f)
		if err != nil {
			return Reply{}, err
		}
		title := "📌 Issues"
		if f.Status != "" {
			title += " (" + string(f.Status) + ")"
		}
		return issueListReply(title, list), nil

	case "stats":
		stats, err := h.tracker.Stats(ctx, cmd.UserID)
		if err != nil {
			return Reply{}, err
		}
		return statsReply(stats), nil

	case "search":
		q := strings.TrimSpace(strings.Join(args[1:], " "))
		list, err := h.tracker.Search(ctx, cmd.UserID, q)
		if err != nil {
			return Reply{}, err
		}
		return issueListReply(fmt.Sprintf("🔎 Issues matching %q", q), list), nil

	case "update":
		if len(args) < 3 {
			return Reply{}, fmt.Errorf("%w: usage: /digest-issues update <id> <status>", models.ErrValidation)
		}
		actor := cmd.UserID
		if h.names != nil {
			actor = h.names.UserName(ctx, cmd.UserID)
		}
		issue, err := h.tracker.Get(ctx, cmd.UserID, args[1])
		if err != nil {
			return Reply{}, err
		}
		issue, err = h.tracker.Transition(ctx, cmd.UserID, issue.ID, models.IssueStatus(strings.ToLower(args[2])), actor)
		if err != nil {
			return Reply{}, err
		}
		return Reply{
			Header: "✅ Issue updated",
			Lines:  []string{issueLine(issue)},
		}, nil
	}
	return issuesHelp(), nil
}
