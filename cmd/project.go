package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/output"
)

var (
	projectChannels []string
	projectKeywords []string
	projectActive   bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects (named channel groups)",
	Long: `A project groups several channels under one name with its own keyword
filter, so one digest can cover all of them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show project details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectShowRun(args[0])
	},
}

var projectActivateCmd = &cobra.Command{
	Use:   "activate <name>",
	Short: "Mark a project active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectToggleRun(args[0], true)
	},
}

var projectDeactivateCmd = &cobra.Command{
	Use:   "deactivate <name>",
	Short: "Mark a project inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectToggleRun(args[0], false)
	},
}

var projectChannelsCmd = &cobra.Command{
	Use:   "channels <name> <channel>...",
	Short: "Replace a project's channels",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectChannelsRun(args[0], args[1:])
	},
}

var projectKeywordsCmd = &cobra.Command{
	Use:   "keywords <name> [keyword...]",
	Short: "Replace a project's keywords (none disables filtering)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectKeywordsRun(args[0], args[1:])
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(args[0])
	},
}

func init() {
	projectAddCmd.Flags().StringSliceVarP(&projectChannels, "channels", "c", nil, "Channels to include (required)")
	projectAddCmd.Flags().StringSliceVarP(&projectKeywords, "keywords", "k", nil, "Keyword filter")
	_ = projectAddCmd.MarkFlagRequired("channels")

	projectListCmd.Flags().BoolVar(&projectActive, "active", false, "Only show active projects")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectActivateCmd)
	projectCmd.AddCommand(projectDeactivateCmd)
	projectCmd.AddCommand(projectChannelsCmd)
	projectCmd.AddCommand(projectKeywordsCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	rootCmd.AddCommand(projectCmd)
}

func formatChannels(channels []string) string {
	return "#" + strings.Join(channels, ", #")
}

func formatKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "(none)"
	}
	return strings.Join(keywords, ", ")
}

func activeLabel(active bool) string {
	if active {
		return output.Green("active")
	}
	return output.Yellow("inactive")
}

func projectAddRun(name string) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create project %s with channels %s", name, formatChannels(projectChannels))
		return nil
	}

	p, err := pm.Create(context.Background(), currentUser(), name, projectChannels, projectKeywords)
	if err != nil {
		return err
	}
	ui.Success("Created project %s (%s)", output.Cyan(p.Name), formatChannels(p.Channels))
	return nil
}

func projectListRun() error {
	pm, err := getProjects()
	if err != nil {
		return err
	}

	list, err := pm.List(context.Background(), currentUser())
	if err != nil {
		return err
	}

	shown := 0
	table := ui.Table([]string{"Name", "Status", "Channels", "Keywords", "Created"})
	for _, p := range list {
		if projectActive && !p.Active {
			continue
		}
		_ = table.Append([]string{
			p.Name,
			activeLabel(p.Active),
			formatChannels(p.Channels),
			formatKeywords(p.Keywords),
			p.CreatedAt.Format("2006-01-02"),
		})
		shown++
	}
	if shown == 0 {
		ui.Info("No projects. Create one with: digest project add <name> --channels a,b")
		return nil
	}
	_ = table.Render()
	return nil
}

func printProject(p *models.Project) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(p.Name), activeLabel(p.Active))
	ui.Field("Channels", formatChannels(p.Channels))
	ui.Field("Keywords", formatKeywords(p.Keywords))
	ui.Field("Created", p.CreatedAt.Format(time.RFC3339))
}

func projectShowRun(name string) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	p, err := pm.Get(context.Background(), currentUser(), name)
	if err != nil {
		return err
	}
	printProject(p)
	return nil
}

func projectToggleRun(name string, active bool) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		ui.DryRunMsg("Would mark project %s %s", name, activeLabel(active))
		return nil
	}

	var p *models.Project
	if active {
		p, err = pm.Activate(ctx, currentUser(), name)
	} else {
		p, err = pm.Deactivate(ctx, currentUser(), name)
	}
	if err != nil {
		return err
	}
	ui.Success("Project %s is %s", output.Cyan(p.Name), activeLabel(p.Active))
	return nil
}

func projectChannelsRun(name string, channels []string) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would set channels of %s to %s", name, formatChannels(channels))
		return nil
	}
	p, err := pm.SetChannels(context.Background(), currentUser(), name, channels)
	if err != nil {
		return err
	}
	ui.Success("Project %s channels: %s", output.Cyan(p.Name), formatChannels(p.Channels))
	return nil
}

func projectKeywordsRun(name string, keywords []string) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would set keywords of %s to %s", name, formatKeywords(keywords))
		return nil
	}
	p, err := pm.SetKeywords(context.Background(), currentUser(), name, keywords)
	if err != nil {
		return err
	}
	ui.Success("Project %s keywords: %s", output.Cyan(p.Name), formatKeywords(p.Keywords))
	return nil
}

func projectRemoveRun(name string) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete project %s", name)
		return nil
	}
	if err := pm.Delete(context.Background(), currentUser(), name); err != nil {
		return err
	}
	ui.Success("Deleted project %s", output.Cyan(name))
	return nil
}
