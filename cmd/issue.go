package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/output"
)

var (
	issueStatus   string
	issuePriority string
	issueTag      string
	issueChannel  string
	issueActor    string
	issueText     string
	issueAuthor   string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Track issues reported in chat",
	Long:  "Scan chat messages for issue reports and manage the resulting issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueScanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Scan a JSON array of messages for issues",
	Long: `Classify a batch of messages and create one open issue per match.

Input is a JSON array of {"text","channel","author","timestamp","message_ts"}
objects read from <file>, or from stdin when <file> is omitted or "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) > 0 {
			path = args[0]
		}
		return issueScanRun(path)
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <open|investigating|resolved|closed>",
	Short: "Change an issue's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(args[0], args[1])
	},
}

var issueSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search issue titles, descriptions, text and tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSearchRun(strings.Join(args, " "))
	},
}

var issueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show issue counts by status and priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatsRun()
	},
}

var issueLinkCmd = &cobra.Command{
	Use:   "link <issue-id>",
	Short: "Attach a follow-up message to an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueLinkRun(args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:   "delete <issue-id>",
	Short: "Delete an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

func init() {
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, investigating, resolved, closed")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority: critical, high, medium, low")
	issueListCmd.Flags().StringVar(&issueTag, "tag", "", "Filter by tag")
	issueListCmd.Flags().StringVar(&issueChannel, "channel", "", "Filter by channel")

	issueStatusCmd.Flags().StringVar(&issueActor, "actor", "", "Who made the change (default: current user)")

	issueLinkCmd.Flags().StringVar(&issueText, "text", "", "Message text (required)")
	issueLinkCmd.Flags().StringVar(&issueChannel, "channel", "", "Channel the message came from (required)")
	issueLinkCmd.Flags().StringVar(&issueAuthor, "author", "", "Message author (default: current user)")
	_ = issueLinkCmd.MarkFlagRequired("text")
	_ = issueLinkCmd.MarkFlagRequired("channel")

	issueCmd.AddCommand(issueScanCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueSearchCmd)
	issueCmd.AddCommand(issueStatsCmd)
	issueCmd.AddCommand(issueLinkCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

// readMessages decodes a JSON array of messages from path, or stdin for "-".
func readMessages(path string) ([]models.Message, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open messages: %w", err)
		}
		defer f.Close()
		r = f
	}

	var msgs []models.Message
	if err := json.NewDecoder(r).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

func issueScanRun(path string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	msgs, err := readMessages(path)
	if err != nil {
		return err
	}

	if dryRun {
		n := 0
		for _, m := range msgs {
			if c, ok := t.Classifier().Classify(m.Text, m.Channel); ok {
				ui.DryRunMsg("Would create issue: %s [%s]", c.Title, c.Priority)
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
	for _, e := range res.Errors {
		ui.Warning("Skipped %v", e)
	}
	for _, issue := range res.Created {
		ui.Success("Created issue %s: %s [%s]", output.Cyan(shortID(issue.ID)), issue.Title, output.PriorityColor(string(issue.Priority)))
	}
	ui.Info("Scanned %d messages: %d issues, %d not issues, %d invalid",
		len(msgs), len(res.Created), res.Skipped, len(res.Errors))
	return nil
}

func printIssueTable(issues []*models.Issue) {
	if len(issues) == 0 {
		ui.Info("No issues found.")
		return
	}
	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Channel", "Reporter", "Tags"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			"#" + issue.Channel,
			issue.Reporter,
			strings.Join(issue.Tags, ", "),
		})
	}
	_ = table.Render()
}

func issueListRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}

	filter := models.IssueFilter{
		Status:   models.IssueStatus(issueStatus),
		Priority: models.IssuePriority(issuePriority),
		Tag:      issueTag,
		Channel:  strings.TrimPrefix(issueChannel, "#"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("unknown status %q", issueStatus)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", issuePriority)
	}

	issues, err := t.List(context.Background(), currentUser(), filter)
	if err != nil {
		return err
	}
	printIssueTable(issues)
	return nil
}

func issueShowRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}

	issue, err := t.Get(context.Background(), currentUser(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	ui.Field("Status", output.StatusColor(string(issue.Status)))
	ui.Field("Priority", output.PriorityColor(string(issue.Priority)))
	ui.Field("Channel", "#"+issue.Channel)
	ui.Field("Reporter", issue.Reporter)
	if len(issue.Tags) > 0 {
		ui.Field("Tags", strings.Join(issue.Tags, ", "))
	}
	ui.Field("Reported", issue.Timestamp.Format(time.RFC3339))
	ui.Field("Updated", issue.UpdatedAt.Format(time.RFC3339))
	ui.Field("Text", issue.OriginalText)
	ui.Field("Full ID", issue.ID)

	fmt.Fprintln(ui.Out, "\n  History:")
	for _, h := range issue.StatusHistory {
		from := ""
		if h.PreviousStatus != "" {
			from = string(h.PreviousStatus) + " → "
		}
		fmt.Fprintf(ui.Out, "    %s  %s%s  by %s\n", h.Timestamp.Format(time.RFC3339), from, output.StatusColor(string(h.Status)), h.Actor)
	}

	if len(issue.RelatedMessages) > 0 {
		fmt.Fprintln(ui.Out, "\n  Related messages:")
		for _, m := range issue.RelatedMessages {
			fmt.Fprintf(ui.Out, "    [%s] #%s %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Channel, m.Author, m.Text)
		}
	}
	return nil
}

func issueStatusRun(id, status string) error {
	st := models.IssueStatus(strings.ToLower(status))
	if !st.Valid() {
		return fmt.Errorf("unknown status %q (use: open, investigating, resolved, closed)", status)
	}
	t, err := getTracker()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor := issueActor
	if actor == "" {
		actor = currentUser()
	}

	issue, err := t.Get(ctx, currentUser(), id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would move issue %s from %s to %s", shortID(issue.ID), issue.Status, st)
		return nil
	}

	issue, err = t.Transition(ctx, currentUser(), issue.ID, st, actor)
	if err != nil {
		return err
	}
	ui.Success("Issue %s is now %s", output.Cyan(shortID(issue.ID)), output.StatusColor(string(issue.Status)))
	return nil
}

func issueSearchRun(query string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	issues, err := t.Search(context.Background(), currentUser(), query)
	if err != nil {
		return err
	}
	printIssueTable(issues)
	return nil
}

func issueStatsRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	stats, err := t.Stats(context.Background(), currentUser())
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Total issues:    %d\n", stats.Total)
	fmt.Fprintf(ui.Out, "Last 24 hours:   %d\n\n", stats.RecentActivity)

	table := ui.Table([]string{"Status", "Count"})
	for _, s := range models.IssueStatuses {
		_ = table.Append([]string{output.StatusColor(string(s)), fmt.Sprint(stats.ByStatus[s])})
	}
	_ = table.Render()
	fmt.Fprintln(ui.Out)

	table = ui.Table([]string{"Priority", "Count"})
	for _, p := range models.IssuePriorities {
		_ = table.Append([]string{output.PriorityColor(string(p)), fmt.Sprint(stats.ByPriority[p])})
	}
	_ = table.Render()
	return nil
}

func issueLinkRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}

	author := issueAuthor
	if author == "" {
		author = currentUser()
	}
	msg := models.Message{
		Text:      issueText,
		Channel:   strings.TrimPrefix(issueChannel, "#"),
		Author:    author,
		Timestamp: time.Now().UTC(),
	}

	ctx := context.Background()
	issue, err := t.Get(ctx, currentUser(), id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would link message from %s to issue %s", author, shortID(issue.ID))
		return nil
	}

	issue, err = t.LinkMessage(ctx, currentUser(), issue.ID, msg)
	if err != nil {
		return err
	}
	ui.Success("Linked message to issue %s (%d related)", output.Cyan(shortID(issue.ID)), len(issue.RelatedMessages))
	return nil
}

func issueDeleteRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := t.Get(ctx, currentUser(), id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}
	if err := t.Delete(ctx, currentUser(), issue.ID); err != nil {
		return err
	}
	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
