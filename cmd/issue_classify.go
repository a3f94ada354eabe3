package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/classify"
	"github.com/joescharf/digest/internal/output"
)

var classifyChannel string

var issueClassifyCmd = &cobra.Command{
	Use:   "classify <text...>",
	Short: "Show how a message would be classified",
	Long: `Run the issue classifier on a message without storing anything.
Useful for checking why a message was or was not picked up by a scan.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueClassifyRun(strings.Join(args, " "))
	},
}

func init() {
	issueClassifyCmd.Flags().StringVar(&classifyChannel, "channel", "", "Channel added to the tags")
	issueCmd.AddCommand(issueClassifyCmd)
}

func issueClassifyRun(text string) error {
	c, ok := classify.Default().Classify(text, strings.TrimPrefix(classifyChannel, "#"))
	if !ok {
		ui.Info("Not an issue: no issue phrases matched")
		return nil
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Green("issue"), c.Title)
	ui.Field("Priority", output.PriorityColor(string(c.Priority)))
	ui.Field("Matched", strings.Join(c.Groups, ", "))
	ui.Field("Tags", strings.Join(c.Tags, ", "))
	if c.Description != c.Title {
		ui.Field("Desc", c.Description)
	}
	return nil
}
