package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mcpconnect/internal/formatting"
	"mcpconnect/internal/mcpserver"
	"mcpconnect/internal/store"
)

type connectOptions struct {
	output string
	quiet  bool
}

// connectOutput is the printed form of a successful connection.
type connectOutput struct {
	ServerID        string     `json:"serverId"`
	ServerName      string     `json:"serverName"`
	ServerVersion   string     `json:"serverVersion"`
	ProtocolVersion string     `json:"protocolVersion"`
	Tools           []toolInfo `json:"tools"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func newConnectCmd() *cobra.Command {
	opts := &connectOptions{}
	cmd := &cobra.Command{
		Use:   "connect <server-id>",
		Short: "Open an MCP session with stored credentials and list the server's tools",
		Long: `Initializes an MCP session with the server using the stored access token,
refreshing it first when it has expired, and lists the tools the server
offers. When the server needs an authorization, its URL is printed instead.

Exit codes are the same as for 'mcpconnect check'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print nothing, report through the exit code")
	return cmd
}

func runConnect(cmd *cobra.Command, serverID string, opts *connectOptions) error {
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

	stop := startSpinner(!useSpinner(cmd, opts.quiet, format == formatting.FormatTable), fmt.Sprintf("Connecting to %s...", serverID))
	result, err := services.Connector.Connect(ctx, serverID)
	stop()
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("unknown MCP server %q", serverID)
		}
		return fmt.Errorf("failed to connect to %s: %w", serverID, err)
	}

	switch r := result.(type) {
	case mcpserver.NeedsAuthorization:
		if !opts.quiet {
			printNeedsAuthorization(cmd.OutOrStdout(), r)
		}
		if r.URL == "" && r.Reason != "" {
			return &AuthFailedError{ServerID: serverID, Reason: r.Reason}
		}
		return &AuthRequiredError{ServerID: serverID, URL: r.URL}
	case mcpserver.Connected:
		if opts.quiet {
			return nil
		}
		out := toConnectOutput(r)
		return formatting.Write(cmd.OutOrStdout(), format, out, func(w io.Writer) {
			renderConnected(w, out)
		})
	default:
		return fmt.Errorf("unexpected connect result %T", result)
	}
}

func toConnectOutput(c mcpserver.Connected) connectOutput {
	out := connectOutput{
		ServerID:        c.ServerID,
		ServerName:      c.ServerInfo.Name,
		ServerVersion:   c.ServerInfo.Version,
		ProtocolVersion: c.ProtocolVersion,
		Tools:           make([]toolInfo, 0, len(c.Tools)),
	}
	for _, tool := range c.Tools {
		out.Tools = append(out.Tools, toolInfo{Name: tool.Name, Description: tool.Description})
	}
	return out
}

func printNeedsAuthorization(w io.Writer, r mcpserver.NeedsAuthorization) {
	if r.URL == "" {
		fmt.Fprintf(w, "%s %s needs authorization: %s\n", text.FgRed.Sprint("✗"), r.ServerID, r.Reason)
		return
	}
	fmt.Fprintf(w, "%s %s needs authorization.\n\nOpen this URL in a browser to authorize:\n  %s\n",
		text.FgYellow.Sprint("!"), r.ServerID, r.URL)
}

func renderConnected(w io.Writer, out connectOutput) {
	fmt.Fprintf(w, "%s Connected to %s (%s %s, protocol %s)\n\n",
		text.FgGreen.Sprint("✓"), out.ServerID, out.ServerName, out.ServerVersion, out.ProtocolVersion)

	if len(out.Tools) == 0 {
		fmt.Fprint(w, formatting.EmptyMessage("No tools found"))
		return
	}
	t := formatting.NewTable(w, "TOOL", "DESCRIPTION")
	for _, tool := range out.Tools {
		t.AppendRow([]interface{}{tool.Name, formatting.Truncate(tool.Description, 80)})
	}
	t.Render()
}
