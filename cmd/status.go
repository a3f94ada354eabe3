package cmd

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/output"
)

var statusActive bool

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show an issue overview per project",
	Long: `Show open issues and recent activity for every project, followed by
totals for the whole partition.

With a project name, shows that project's details and its open issues.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return statusProjectRun(args[0])
		}
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusActive, "active", false, "Only show active projects")
	rootCmd.AddCommand(statusCmd)
}

// unresolved reports whether an issue still needs attention.
func unresolved(i *models.Issue) bool {
	return i.Status == models.IssueStatusOpen || i.Status == models.IssueStatusInvestigating
}

// projectIssues returns the issues reported in any of the project's channels.
func projectIssues(p *models.Project, issues []*models.Issue) []*models.Issue {
	var out []*models.Issue
	for _, i := range issues {
		if slices.Contains(p.Channels, i.Channel) {
			out = append(out, i)
		}
	}
	return out
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := s.View(ctx, currentUser())
	if err != nil {
		return err
	}
	t, err := getTracker()
	if err != nil {
		return err
	}
	issues, err := t.List(ctx, currentUser(), models.IssueFilter{})
	if err != nil {
		return err
	}
	pm, err := getProjects()
	if err != nil {
		return err
	}
	list, err := pm.List(ctx, currentUser())
	if err != nil {
		return err
	}

	if len(list) == 0 && len(issues) == 0 {
		ui.Info("Nothing tracked yet. Use 'digest project add' or 'digest issue scan' to get started.")
		return nil
	}

	if len(list) > 0 {
		table := ui.Table([]string{"Project", "Status", "Channels", "Open", "Critical", "Activity"})
		for _, proj := range list {
			if statusActive && !proj.Active {
				continue
			}
			scoped := projectIssues(proj, issues)
			_ = table.Append([]string{
				output.Cyan(proj.Name),
				activeLabel(proj.Active),
				fmt.Sprint(len(proj.Channels)),
				formatIssueCounts(scoped),
				criticalCount(scoped),
				lastActivity(scoped),
			})
		}
		_ = table.Render()
		fmt.Fprintln(ui.Out)
	}

	fmt.Fprintf(ui.Out, "Issues: %s  Window: %s  Keywords: %s\n",
		formatIssueCounts(issues), output.Hours(p.Settings.DefaultHours), formatKeywords(p.Settings.Keywords))
	return nil
}

func statusProjectRun(name string) error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	ctx := context.Background()
	proj, err := pm.Get(ctx, currentUser(), name)
	if err != nil {
		return err
	}
	t, err := getTracker()
	if err != nil {
		return err
	}
	issues, err := t.List(ctx, currentUser(), models.IssueFilter{})
	if err != nil {
		return err
	}

	printProject(proj)
	fmt.Fprintln(ui.Out)

	var open []*models.Issue
	for _, i := range projectIssues(proj, issues) {
		if unresolved(i) {
			open = append(open, i)
		}
	}
	printIssueTable(open)
	return nil
}

// formatIssueCounts renders "open/investigating".
func formatIssueCounts(issues []*models.Issue) string {
	if len(issues) == 0 {
		return "-"
	}
	open, investigating := 0, 0
	for _, i := range issues {
		switch i.Status {
		case models.IssueStatusOpen:
			open++
		case models.IssueStatusInvestigating:
			investigating++
		}
	}
	return fmt.Sprintf("%d/%d", open, investigating)
}

func criticalCount(issues []*models.Issue) string {
	n := 0
	for _, i := range issues {
		if unresolved(i) && i.Priority == models.IssuePriorityCritical {
			n++
		}
	}
	if n == 0 {
		return "-"
	}
	return output.Red(fmt.Sprint(n))
}

func lastActivity(issues []*models.Issue) string {
	var last time.Time
	for _, i := range issues {
		if i.UpdatedAt.After(last) {
			last = i.UpdatedAt
		}
	}
	if last.IsZero() {
		return "n/a"
	}
	return timeAgo(last)
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
