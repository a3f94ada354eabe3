package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/digest/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio so assistants can
query and update tracked issues and projects. Configure a client with:

  {
    "mcpServers": {
      "digest": { "command": "digest", "args": ["mcp"] }
    }
  }

Available tools: digest_list_issues, digest_get_issue, digest_search_issues,
digest_issue_stats, digest_update_issue_status, digest_scan_messages,
digest_list_projects, and digest_channel_digest when Slack and an LLM
are configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	pm, err := getProjects()
	if err != nil {
		return err
	}
	sm, err := getSettings()
	if err != nil {
		return err
	}

	svc, _, err := buildDigestService(t, pm, sm)
	if err != nil {
		logger.Info("channel digest tool disabled", "reason", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()
	return mcp.NewServer(t, pm, svc, currentUser(), buildVersion).ServeStdio(ctx)
}
