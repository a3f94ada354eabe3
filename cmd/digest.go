package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/output"
	"github.com/joescharf/digest/internal/slackbot"
)

var (
	digestHours    int
	digestKeywords []string
	digestProject  string
	digestIssues   bool
	digestTrack    bool
	digestJSON     bool
	digestPost     string
)

var digestRunCmd = &cobra.Command{
	Use:   "run [channel...]",
	Short: "Summarize recent channel activity",
	Long: `Fetch recent history for one or more channels, filter it by keyword and
summarize the result.

Running 'digest <channel>...' is the same as 'digest run <channel>...'.
With --project the project's channels and keywords are used instead.
With --issues only messages that look like issue reports are summarized,
and detected issues are tracked unless --track=false.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return digestRunRun(cmd, args)
	},
}

func init() {
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return digestRunRun(cmd, args)
	}

	for _, c := range []*cobra.Command{rootCmd, digestRunCmd} {
		f := c.Flags()
		f.IntVar(&digestHours, "hours", 0, "Lookback window in hours, 1-168 (default: user setting)")
		f.StringSliceVar(&digestKeywords, "keywords", nil, "Keyword filter, overrides the user setting (empty disables filtering)")
		f.StringVar(&digestProject, "project", "", "Summarize a saved project instead of channels")
		f.BoolVar(&digestIssues, "issues", false, "Summarize issue reports only")
		f.BoolVar(&digestTrack, "track", true, "Track detected issues (with --issues)")
		f.BoolVar(&digestJSON, "json", false, "Print the raw result as JSON")
		f.StringVar(&digestPost, "post", "", "Also post the digest to this channel")
	}
	rootCmd.AddCommand(digestRunCmd)
}

func digestRunRun(cmd *cobra.Command, channels []string) error {
	if digestProject == "" && len(channels) == 0 {
		return fmt.Errorf("name at least one channel or use --project")
	}
	if digestProject != "" && len(channels) > 0 {
		return fmt.Errorf("--project cannot be combined with channel arguments")
	}

	svc, client, err := newDigestService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	req := digest.Request{User: currentUser(), Channels: channels, Hours: digestHours}
	if cmd.Flags().Changed("keywords") {
		req.Keywords = append([]string{}, digestKeywords...)
	}

	ui.VerboseLog("Building digest for %s", describeTarget(channels))

	var res *digest.Result
	switch {
	case digestProject != "":
		res, err = svc.ProjectDigest(ctx, req.User, digestProject, digestHours, "")
	case digestIssues:
		if dryRun {
			digestTrack = false
			ui.DryRunMsg("Would track detected issues; tracking disabled for this run")
		}
		res, err = svc.IssueDigest(ctx, req, digestTrack)
	default:
		res, err = svc.ChannelDigest(ctx, req)
	}
	if err != nil {
		return err
	}

	if digestJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printDigest(res)

	if digestPost != "" {
		if dryRun {
			ui.DryRunMsg("Would post digest to #%s", digestPost)
			return nil
		}
		text := slackbot.RenderDigest(slackbot.DigestTitle(res), res).Text()
		if err := client.PostText(ctx, digestPost, text); err != nil {
			return fmt.Errorf("post digest: %w", err)
		}
		ui.Success("Posted digest to #%s", digestPost)
	}
	return nil
}

func describeTarget(channels []string) string {
	if digestProject != "" {
		return "project " + digestProject
	}
	return "#" + strings.Join(channels, ", #")
}

func printDigest(res *digest.Result) {
	ui.Heading("%s", slackbot.DigestTitle(res))

	switch {
	case res.Payload.MatchedCount() == 0:
		ui.Info("No relevant messages in the last %s.", output.Hours(res.Hours))
	case res.Summary == nil:
		for _, line := range res.Payload.Lines() {
			ui.Bullet(line, "")
		}
	default:
		for _, b := range res.Summary.Bullets {
			ui.Bullet(b.Text, b.Link)
		}
	}

	if len(res.IssueTypes) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Field("Issue types", strings.Join(res.IssueTypes, ", "))
		ui.Field("Priorities", strings.Join(res.Priorities, ", "))
	}
	for _, issue := range res.Created {
		ui.Success("Tracked %s %s [%s]", output.Cyan(shortID(issue.ID)), issue.Title, output.PriorityColor(string(issue.Priority)))
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, res.Footer())
}
