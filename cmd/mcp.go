package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/itrack/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients work with issues through the same service the REST API
uses. Configure a client with:

  {
    "mcpServers": {
      "itrack": { "command": "itrack", "args": ["mcp"] }
    }
  }

Available tools: itrack_list_issues, itrack_get_issue, itrack_create_issue,
itrack_update_issue, itrack_delete_issue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmdContext(), shutdownSignals()...)
		defer stop()

		logger.Info("mcp server starting", "version", buildVersion)
		return mcp.NewServer(svc, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
