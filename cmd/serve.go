package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the OAuth check and callback endpoints",
		Long: `Starts the HTTP API that drives the OAuth flow for registered MCP servers:

  POST /api/mcp-servers/{id}/oauth/check   Detect OAuth and start an authorization
  GET  /api/oauth/callback/{id}            Authorization server redirect target
  GET  /api/mcp-servers/oauth/status       Redacted status of every server
  GET  /health                             Liveness

Server definitions are read from config.yaml and the servers/ directory of
the configuration path. Changes to that directory are picked up while the
server runs.

The public URL (publicUrl in config.yaml or MCPCONNECT_PUBLIC_URL) must be
set for redirect URIs to be built. Without it, servers that need OAuth
report a configuration error while open servers keep working.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	application, err := openApplication(ctx, false)
	if err != nil {
		return err
	}
	defer closeApplication(application)

	return application.Run(ctx)
}
