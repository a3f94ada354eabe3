package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/chat"
	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/output"
)

var importChannel string

var issueImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Scan a Slack export or chat transcript for issues",
	Long: `Scan saved chat history for issues.

<path> may be a Slack workspace export directory (one sub-directory per
channel holding YYYY-MM-DD.json files) or a text transcript with one
"[author] text" message per line. Transcripts need --channel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(args[0])
	},
}

func init() {
	issueImportCmd.Flags().StringVar(&importChannel, "channel", "", "Channel name for transcript input")
	issueCmd.AddCommand(issueImportCmd)
}

func issueImportRun(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	var msgs []models.Message
	if info.IsDir() {
		msgs, err = readSlackExport(path)
	} else {
		if importChannel == "" {
			return fmt.Errorf("--channel is required for transcript input")
		}
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return fmt.Errorf("read import: %w", err)
		}
		defer f.Close()
		msgs, err = parseTranscript(f, strings.TrimPrefix(importChannel, "#"))
	}
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		ui.Info("No messages found in %s", path)
		return nil
	}
	ui.VerboseLog("Read %d messages from %s", len(msgs), path)

	t, err := getTracker()
	if err != nil {
		return err
	}

	if dryRun {
		n := 0
		for _, m := range msgs {
			if c, ok := t.Classifier().Classify(m.Text, m.Channel); ok {
				ui.DryRunMsg("Would create issue in #%s: %s [%s]", m.Channel, c.Title, c.Priority)
				n++
			}
		}
		ui.Info("%d of %d messages look like issues", n, len(msgs))
		return nil
	}

	res, err := t.Scan(context.Background(), currentUser(), msgs)
	if err != nil {
		return err
	}
	for _, issue := range res.Created {
		ui.VerboseLog("Created %s #%s %s", shortID(issue.ID), issue.Channel, issue.Title)
	}
	ui.Success("Imported %s issues from %d messages (%d skipped, %d invalid)",
		output.Cyan(fmt.Sprint(len(res.Created))), len(msgs), res.Skipped, len(res.Errors))
	return nil
}

// exportMessage is one entry of a Slack export day file.
type exportMessage struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	User        string `json:"user"`
	Text        string `json:"text"`
	TS          string `json:"ts"`
	UserProfile struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
	} `json:"user_profile"`
}

func (m exportMessage) author() string {
	switch {
	case m.UserProfile.DisplayName != "":
		return m.UserProfile.DisplayName
	case m.UserProfile.RealName != "":
		return m.UserProfile.RealName
	case m.User != "":
		return m.User
	default:
		return "unknown"
	}
}

// readSlackExport loads every channel directory under root, oldest day first.
// Bot and system messages (any subtype) are skipped.
func readSlackExport(root string) ([]models.Message, error) {
	days, err := filepath.Glob(filepath.Join(root, "*", "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(days)

	var msgs []models.Message
	for _, day := range days {
		channel := filepath.Base(filepath.Dir(day))
		data, err := os.ReadFile(day)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", day, err)
		}
		var entries []exportMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode %s: %w", day, err)
		}
		for _, e := range entries {
			if e.Subtype != "" || strings.TrimSpace(e.Text) == "" {
				continue
			}
			msgs = append(msgs, models.Message{
				Text:      e.Text,
				Channel:   channel,
				Author:    e.author(),
				AuthorID:  e.User,
				Timestamp: chat.ParseTS(e.TS),
				MessageTS: e.TS,
			})
		}
	}
	return msgs, nil
}

var transcriptLine = regexp.MustCompile(`^\s*(?:[-*•]\s*)?\[([^\]]+)\]\s*(.+)$`)

// parseTranscript reads "[author] text" lines. Other lines continue the
// previous message; blank lines and lines before the first message are ignored.
func parseTranscript(r io.Reader, channel string) ([]models.Message, error) {
	var msgs []models.Message
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if m := transcriptLine.FindStringSubmatch(line); m != nil {
			msgs = append(msgs, models.Message{
				Text:    strings.TrimSpace(m[2]),
				Channel: channel,
				Author:  strings.TrimSpace(m[1]),
			})
			continue
		}
		if len(msgs) > 0 && strings.TrimSpace(line) != "" {
			last := &msgs[len(msgs)-1]
			last.Text += "\n" + strings.TrimSpace(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return msgs, nil
}
