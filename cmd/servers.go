package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mcpconnect/internal/config"
	"mcpconnect/internal/formatting"
	"mcpconnect/internal/oauth"
	"mcpconnect/internal/registry"
	"mcpconnect/internal/store"
)

func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "servers",
		Aliases: []string{"server"},
		Short:   "Manage registered MCP servers",
		Long: `Lists, adds and removes the MCP servers mcpconnect authorizes.

Definitions live as one YAML file per server in the servers/ directory of
the configuration path. A running 'mcpconnect serve' picks up changes.`,
	}
	cmd.AddCommand(newServersListCmd(), newServersAddCmd(), newServersRemoveCmd())
	return cmd
}

func newServersListCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List servers with their OAuth status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersList(cmd, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}

func runServersList(cmd *cobra.Command, output string) error {
	format, err := formatting.ParseFormat(output)
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
	statuses, err := services.Manager.Statuses(ctx)
	if err != nil {
		return err
	}

	return formatting.Write(cmd.OutOrStdout(), format, map[string]any{"servers": statuses}, func(w io.Writer) {
		renderServers(w, statuses)
	})
}

func renderServers(w io.Writer, statuses []oauth.ServerStatus) {
	if len(statuses) == 0 {
		fmt.Fprint(w, formatting.EmptyMessage("No MCP servers registered. Add one with 'mcpconnect servers add <url>'."))
		return
	}

	t := formatting.NewTable(w, "ID", "NAME", "URL", "STATUS", "TOKEN EXPIRES", "LAST ERROR")
	for _, s := range statuses {
		expires := "-"
		if s.Tokens != nil && s.Tokens.ExpiresAt != nil {
			expires = s.Tokens.ExpiresAt.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow([]interface{}{
			s.ID,
			s.Name,
			s.URL,
			formatting.Status(s.OAuthStatus, s.Connected),
			expires,
			formatting.Truncate(s.LastError, 50),
		})
	}
	t.Render()
}

type serversAddOptions struct {
	id                      string
	name                    string
	clientID                string
	clientSecret            string
	tokenEndpointAuthMethod string
}

func newServersAddCmd() *cobra.Command {
	opts := &serversAddOptions{}
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register an MCP server",
		Long: `Registers the MCP server at <url>. Use --client-id (and --client-secret)
for authorization servers that do not support dynamic client registration.

Examples:
  mcpconnect servers add https://mcp.example.com/mcp --id example
  mcpconnect servers add https://api.example.com/mcp --id api --client-id my-client`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersAdd(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "Server id (default: generated)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "Pre-registered OAuth client id")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "Pre-registered OAuth client secret")
	cmd.Flags().StringVar(&opts.tokenEndpointAuthMethod, "token-endpoint-auth-method", "", "Client authentication at the token endpoint (client_secret_basic, client_secret_post, none)")
	return cmd
}

func runServersAdd(cmd *cobra.Command, url string, opts *serversAddOptions) error {
	id := opts.id
	if id == "" {
		id = "server-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	def := config.ServerDefinition{
		ID:                      id,
		Name:                    opts.name,
		URL:                     url,
		ClientID:                opts.clientID,
		ClientSecret:            opts.clientSecret,
		TokenEndpointAuthMethod: opts.tokenEndpointAuthMethod,
	}
	if err := config.ValidateServerDefinition(def); err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := openApplication(ctx, true)
	if err != nil {
		return err
	}
	defer closeApplication(application)
	services := application.Services()

	path, err := registry.Save(services.DefinitionsDir, def)
	if err != nil {
		return err
	}
	if _, err := services.Syncer.Sync(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added MCP server %s (%s)\nDefinition written to %s\n", id, url, path)
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'mcpconnect check %s' to authorize it.\n", id)
	return nil
}

func newServersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <server-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an MCP server with its stored credentials",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersRemove(cmd, args[0])
		},
	}
}

func runServersRemove(cmd *cobra.Command, serverID string) error {
	if err := config.ValidateServerID(serverID); err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := openApplication(ctx, true)
	if err != nil {
		return err
	}
	defer closeApplication(application)
	services := application.Services()

	definitionRemoved := true
	if err := registry.Remove(services.DefinitionsDir, serverID); err != nil {
		if !errors.Is(err, registry.ErrDefinitionNotFound) {
			return err
		}
		definitionRemoved = false
	}

	recordRemoved := true
	if err := services.Store.Delete(ctx, serverID); err != nil {
		if !store.IsNotFound(err) {
			return err
		}
		recordRemoved = false
	}

	if !definitionRemoved && !recordRemoved {
		return fmt.Errorf("unknown MCP server %q", serverID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed MCP server %s\n", serverID)
	return nil
}
