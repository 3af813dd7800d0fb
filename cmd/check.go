package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mcpconnect/internal/formatting"
	"mcpconnect/internal/oauth"
	"mcpconnect/internal/store"
)

type checkOptions struct {
	output string
	quiet  bool
}

// checkOutput is the printed form of a check.
type checkOutput struct {
	ServerID string `json:"serverId"`
	*oauth.CheckResult
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check <server-id>",
		Short: "Detect whether an MCP server needs OAuth and start the authorization",
		Long: `Probes the MCP server, and when it answers 401 discovers its authorization
server, registers a client and prints the URL to open in a browser.

The authorization server redirects back to the callback endpoint of
'mcpconnect serve', which must be reachable under the configured public URL.

Exit codes:
  0  the server is connected or does not need OAuth
  1  the command failed
  2  the URL printed must be opened to authorize the server
  3  a step of the OAuth flow failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print nothing, report through the exit code")
	return cmd
}

func runCheck(cmd *cobra.Command, serverID string, opts *checkOptions) error {
	format, err := formatting.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := openApplication(ctx, true)
	if err != nil {
		return err
	}
	defer closeApplication(application)
	services := application.Services()

	if _, err := services.Syncer.Sync(ctx); err != nil {
		return err
	}

	stop := startSpinner(!useSpinner(cmd, opts.quiet, format == formatting.FormatTable), fmt.Sprintf("Checking %s...", serverID))
	result, err := services.Manager.Check(ctx, serverID)
	stop()
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("unknown MCP server %q", serverID)
		}
		if oauth.KindOf(err) != "" {
			return fmt.Errorf("%s: %w", oauth.UserMessage(err), err)
		}
		return err
	}

	if !opts.quiet {
		out := checkOutput{ServerID: serverID, CheckResult: result}
		if err := formatting.Write(cmd.OutOrStdout(), format, out, func(w io.Writer) {
			renderCheck(w, out)
		}); err != nil {
			return err
		}
	}
	return checkExitError(serverID, result)
}

func renderCheck(w io.Writer, out checkOutput) {
	t := formatting.NewTable(w)
	t.AppendRow([]interface{}{"Server", out.ServerID})
	t.AppendRow([]interface{}{"Status", formatting.Status(out.OAuthStatus, out.Connected)})
	t.AppendRow([]interface{}{"Requires OAuth", out.RequiresAuth})
	if out.Error != "" {
		t.AppendRow([]interface{}{"Error", out.Error})
	}
	t.Render()

	if out.AuthorizationURL != "" {
		fmt.Fprintf(w, "\nOpen this URL in a browser to authorize %s:\n  %s\n", out.ServerID, out.AuthorizationURL)
	}
}

// checkExitError maps a check result onto the command's exit code.
func checkExitError(serverID string, result *oauth.CheckResult) error {
	switch {
	case result.Error != "":
		return &AuthFailedError{ServerID: serverID, Reason: result.Error}
	case result.AuthorizationURL != "":
		return &AuthRequiredError{ServerID: serverID, URL: result.AuthorizationURL}
	default:
		return nil
	}
}
