package main

import (
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/canvas/observability"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the canvas MCP tools over stdio",
	Long: `Runs the MCP tools on stdin/stdout for a local agent. Mutations are
written to the shared database; a running server picks them up and
delivers them to connected editors.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		// stdout carries the protocol.
		logger := observability.NewLogger(os.Stderr, cfg.LogLevel)
		slog.SetDefault(logger)

		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		a := newApp(cfg, db, logger)
		defer a.hub.Close()
		return a.srv.MCP().Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
