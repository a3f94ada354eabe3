package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/output"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change your digest preferences",
	Long: `Per-user digest preferences: a custom prompt appended to every summary
request, the default keyword filter and the default lookback window.

Running bare 'digest settings' is the same as 'digest settings show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsShowRun()
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsShowRun()
	},
}

var settingsPromptCmd = &cobra.Command{
	Use:   "prompt [text...]",
	Short: "Set the custom prompt (no text clears it)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsPromptRun(strings.Join(args, " "))
	},
}

var settingsKeywordsCmd = &cobra.Command{
	Use:   "keywords [keyword...]",
	Short: "Set the default keyword filter (none disables filtering)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsKeywordsRun(args)
	},
}

var settingsHoursCmd = &cobra.Command{
	Use:   "hours <1-168>",
	Short: "Set the default lookback window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsHoursRun(args[0])
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return settingsResetRun()
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsPromptCmd)
	settingsCmd.AddCommand(settingsKeywordsCmd)
	settingsCmd.AddCommand(settingsHoursCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func printSettings(st models.Settings) {
	prompt := st.Prompt
	if prompt == "" {
		prompt = "(default)"
	}
	fmt.Fprintf(ui.Out, "Settings for %s\n", output.Cyan(currentUser()))
	ui.Field("Prompt", prompt)
	ui.Field("Keywords", formatKeywords(st.Keywords))
	ui.Field("Hours", output.Hours(st.DefaultHours))
}

func settingsShowRun() error {
	sm, err := getSettings()
	if err != nil {
		return err
	}
	st, err := sm.Get(context.Background(), currentUser())
	if err != nil {
		return err
	}
	printSettings(st)
	return nil
}

func settingsPromptRun(prompt string) error {
	sm, err := getSettings()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would set prompt to %q", prompt)
		return nil
	}
	st, err := sm.SetPrompt(context.Background(), currentUser(), prompt)
	if err != nil {
		return err
	}
	if st.Prompt == "" {
		ui.Success("Custom prompt cleared")
	} else {
		ui.Success("Custom prompt set")
	}
	return nil
}

func settingsKeywordsRun(keywords []string) error {
	sm, err := getSettings()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would set keywords to %s", formatKeywords(keywords))
		return nil
	}
	st, err := sm.SetKeywords(context.Background(), currentUser(), keywords)
	if err != nil {
		return err
	}
	ui.Success("Keywords: %s", formatKeywords(st.Keywords))
	return nil
}

func settingsHoursRun(arg string) error {
	hours, err := strconv.Atoi(arg)
	if err != nil || !models.ValidHours(hours) {
		return fmt.Errorf("hours must be a number between %d and %d", models.MinHours, models.MaxHours)
	}
	sm, err := getSettings()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would set default window to %s", output.Hours(hours))
		return nil
	}
	st, err := sm.SetHours(context.Background(), currentUser(), hours)
	if err != nil {
		return err
	}
	ui.Success("Default window: %s", output.Hours(st.DefaultHours))
	return nil
}

func settingsResetRun() error {
	sm, err := getSettings()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would reset settings for %s", currentUser())
		return nil
	}
	st, err := sm.Reset(context.Background(), currentUser())
	if err != nil {
		return err
	}
	ui.Success("Settings reset")
	printSettings(st)
	return nil
}
