package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the server needs the user to authorize it.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates a step of the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

var (
	// configPath is the configuration directory shared by all commands.
	configPath string

	// debug enables debug logging.
	debug bool
)

// rootCmd represents the base command for the mcpconnect application.
var rootCmd = &cobra.Command{
	Use:   "mcpconnect",
	Short: "Authorize and connect to remote MCP servers over OAuth",
	Long: `mcpconnect discovers whether a remote MCP HTTP server requires OAuth,
registers a client with its authorization server, runs the authorization
code flow with PKCE and keeps the resulting tokens fresh.

Run 'mcpconnect serve' to expose the check and callback endpoints, or use
'mcpconnect check' and 'mcpconnect connect' from the command line.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpconnect version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/mcpconnect)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newServersCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
