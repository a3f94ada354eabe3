package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/digest/internal/models"
	"github.com/joescharf/digest/internal/store"
)

var (
	exportFormat string
	exportType   string
	exportAll    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored data as JSON, YAML, CSV, or Markdown",
	Long: `Export a user's partition, projects or issues.

--type partition dumps the stored document (json or yaml only).
--all exports every user's partition keyed by user id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, yaml, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "partition", "Data type: partition, projects, issues")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every user's partition")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if exportAll {
		return exportAllPartitions(ctx, s)
	}

	switch exportType {
	case "partition":
		p, err := s.View(ctx, currentUser())
		if err != nil {
			return err
		}
		return encodeDocument(p)
	case "projects":
		return exportProjects()
	case "issues":
		return exportIssues(ctx)
	default:
		return fmt.Errorf("unknown export type: %s (use: partition, projects, issues)", exportType)
	}
}

func exportAllPartitions(ctx context.Context, s store.Store) error {
	users, err := s.Users(ctx)
	if err != nil {
		return err
	}
	all := make(map[string]*models.Partition, len(users))
	for _, u := range users {
		if all[u], err = s.View(ctx, u); err != nil {
			return err
		}
	}
	return encodeDocument(all)
}

// encodeDocument writes v as JSON or YAML. YAML goes through the JSON form
// so both share field names.
func encodeDocument(v any) error {
	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(ui.Out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unsupported format for %s: %s (use: json, yaml)", exportType, exportFormat)
	}
}

func exportProjects() error {
	pm, err := getProjects()
	if err != nil {
		return err
	}
	list, err := pm.List(context.Background(), currentUser())
	if err != nil {
		return err
	}

	switch exportFormat {
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"Name", "Channels", "Keywords", "Active", "Created"})
		for _, p := range list {
			_ = w.Write([]string{p.Name, strings.Join(p.Channels, " "), strings.Join(p.Keywords, " "),
				fmt.Sprint(p.Active), p.CreatedAt.Format("2006-01-02")})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Projects")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Name | Channels | Keywords | Active |")
		fmt.Fprintln(ui.Out, "|------|----------|----------|--------|")
		for _, p := range list {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %t |\n", p.Name, formatChannels(p.Channels), formatKeywords(p.Keywords), p.Active)
		}
		return nil
	default:
		return encodeDocument(list)
	}
}

func exportIssues(ctx context.Context) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	issues, err := t.List(ctx, currentUser(), models.IssueFilter{})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Status", "Priority", "Channel", "Reporter", "Tags", "Created"})
		for _, i := range issues {
			_ = w.Write([]string{i.ID, i.Title, string(i.Status), string(i.Priority), i.Channel, i.Reporter,
				strings.Join(i.Tags, " "), i.CreatedAt.Format("2006-01-02")})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Title | Status | Priority | Channel |")
		fmt.Fprintln(ui.Out, "|-------|--------|----------|---------|")
		for _, i := range issues {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | #%s |\n", i.Title, i.Status, i.Priority, i.Channel)
		}
		return nil
	default:
		return encodeDocument(issues)
	}
}
