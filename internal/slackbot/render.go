package slackbot

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/llm"
	"github.com/joescharf/digest/internal/models"
)

// Reply is a rendered command response.
type Reply struct {
	Header string
	Lines  []string
	Footer string
}

// Text renders the reply as mrkdwn.
func (r Reply) Text() string {
	var sb strings.Builder
	if r.Header != "" {
		sb.WriteString("*" + r.Header + "*\n")
	}
	for _, l := range r.Lines {
		sb.WriteString(l + "\n")
	}
	if r.Footer != "" {
		sb.WriteString("_" + r.Footer + "_\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Blocks renders the reply as Block Kit blocks.
func (r Reply) Blocks() []slack.Block {
	var blocks []slack.Block
	if r.Header != "" {
		blocks = append(blocks, slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", r.Header, true, false)))
	}
	if len(r.Lines) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", strings.Join(r.Lines, "\n"), false, false), nil, nil))
	}
	if r.Footer != "" {
		blocks = append(blocks,
			slack.NewDividerBlock(),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", r.Footer, false, false)))
	}
	return blocks
}

var statusEmoji = map[models.IssueStatus]string{
	models.IssueStatusOpen:          "🔴",
	models.IssueStatusInvestigating: "🟡",
	models.IssueStatusResolved:      "🟢",
	models.IssueStatusClosed:        "⚪",
}

// DigestTitle names a digest result by kind, channels and window.
func DigestTitle(res *digest.Result) string {
	switch res.Kind {
	case llm.KindProject:
		return fmt.Sprintf("🗂️ Project %s (last %d hours)", res.Project, res.Hours)
	case llm.KindIssue:
		return fmt.Sprintf("🔍 Issue scan for #%s (last %d hours)", strings.Join(res.Channels, ", #"), res.Hours)
	default:
		return fmt.Sprintf("📋 Digest for #%s (last %d hours)", strings.Join(res.Channels, ", #"), res.Hours)
	}
}

// RenderDigest formats a digest result under title.
func RenderDigest(title string, res *digest.Result) Reply {
	r := Reply{Header: title, Footer: res.Footer()}
	switch {
	case res.Payload.MatchedCount() == 0:
		r.Lines = []string{fmt.Sprintf("No relevant messages in the last %d hours.", res.Hours)}
	case res.Summary == nil:
		for i, line := range res.Payload.Lines() {
			if i == maxListed {
				r.Lines = append(r.Lines, fmt.Sprintf("…and %d more", res.Payload.MatchedCount()-maxListed))
				break
			}
			r.Lines = append(r.Lines, "• "+line)
		}
	default:
		for _, b := range res.Summary.Bullets {
			line := "• " + b.Text
			if b.Link != "" {
				line += fmt.Sprintf(" <%s|↗>", b.Link)
			}
			r.Lines = append(r.Lines, line)
		}
	}
	return r
}

func settingsReply(s models.Settings) Reply {
	prompt := s.Prompt
	if prompt == "" {
		prompt = "(default)"
	}
	keywords := "(none, all messages)"
	if len(s.Keywords) > 0 {
		keywords = strings.Join(s.Keywords, ", ")
	}
	return Reply{
		Header: "⚙️ Digest settings",
		Lines: []string{
			"*Prompt:* " + prompt,
			"*Keywords:* " + keywords,
			fmt.Sprintf("*Default hours:* %d", s.DefaultHours),
		},
	}
}

func projectReply(p *models.Project) Reply {
	state := "active"
	if !p.Active {
		state = "inactive"
	}
	keywords := "(none)"
	if len(p.Keywords) > 0 {
		keywords = strings.Join(p.Keywords, ", ")
	}
	chans := make([]string, len(p.Channels))
	for i, c := range p.Channels {
		chans[i] = "#" + c
	}
	return Reply{
		Header: "🗂️ Project " + p.Name,
		Lines: []string{
			"*Channels:* " + strings.Join(chans, ", "),
			"*Keywords:* " + keywords,
			"*State:* " + state,
		},
	}
}

func projectListReply(list []*models.Project) Reply {
	r := Reply{Header: "🗂️ Projects"}
	if len(list) == 0 {
		r.Lines = []string{"No projects yet. Create one with `/digest-project create <name> #ch1,#ch2`."}
		return r
	}
	for _, p := range list {
		line := fmt.Sprintf("• *%s* (%d channels)", p.Name, len(p.Channels))
		if !p.Active {
			line += " _inactive_"
		}
		r.Lines = append(r.Lines, line)
	}
	return r
}

func issueLine(i *models.Issue) string {
	return fmt.Sprintf("%s `%s` *%s* [%s] #%s", statusEmoji[i.Status], shortID(i.ID), i.Title, i.Priority, i.Channel)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func issueListReply(title string, list []*models.Issue) Reply {
	r := Reply{Header: title, Footer: fmt.Sprintf("%d issues", len(list))}
	if len(list) == 0 {
		r.Lines = []string{"No issues found."}
		return r
	}
	for i, issue := range list {
		if i == maxListed {
			r.Lines = append(r.Lines, fmt.Sprintf("…and %d more", len(list)-maxListed))
			break
		}
		r.Lines = append(r.Lines, issueLine(issue))
	}
	return r
}

func statsReply(s *models.IssueStats) Reply {
	r := Reply{Header: "📊 Issue statistics"}
	r.Lines = append(r.Lines, fmt.Sprintf("*Total:* %d", s.Total))
	for _, st := range models.IssueStatuses {
		r.Lines = append(r.Lines, fmt.Sprintf("%s %s: %d", statusEmoji[st], st, s.ByStatus[st]))
	}
	var prios []string
	for _, p := range models.IssuePriorities {
		prios = append(prios, fmt.Sprintf("%s %d", p, s.ByPriority[p]))
	}
	r.Lines = append(r.Lines, "*By priority:* "+strings.Join(prios, " · "))
	r.Footer = fmt.Sprintf("%d issues updated in the last 24 hours", s.RecentActivity)
	return r
}

func configHelp() Reply {
	return Reply{Header: "⚙️ /digest-config", Lines: []string{
		"`/digest-config show`",
		"`/digest-config prompt \"Focus on hardware decisions\"`",
		"`/digest-config keywords pcb,firmware,motor`",
		"`/digest-config hours 48`",
		"`/digest-config reset`",
	}}
}

func projectHelp() Reply {
	return Reply{Header: "🗂️ /digest-project", Lines: []string{
		"`/digest-project create <name> #ch1,#ch2 [keywords...]`",
		"`/digest-project list`",
		"`/digest-project config <name>`",
		"`/digest-project activate|deactivate|delete <name>`",
		"`/digest-project <name> [hours]`",
	}}
}

func issuesHelp() Reply {
	return Reply{Header: "🔍 /digest-issues", Lines: []string{
		"`/digest-issues scan [hours]`",
		"`/digest-issues list [open|investigating|resolved|closed]`",
		"`/digest-issues stats`",
		"`/digest-issues search <text>`",
		"`/digest-issues update <id> <status>`",
	}}
}
