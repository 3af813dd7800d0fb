package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug specifies the GitHub repository (owner/repo) to check for updates.
const githubRepoSlug = "mcpconnect/mcpconnect"

// newSelfUpdateCmd creates the Cobra command for the self-update functionality.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update mcpconnect to the latest version",
		Long: `Checks for the latest release of mcpconnect on GitHub and
updates the current binary if a newer version is found.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
}

// runSelfUpdate replaces the running binary with the latest GitHub release
// when it is newer than the current version.
func runSelfUpdate(cmd *cobra.Command, args []string) error {
	currentVersion := rootCmd.Version
	// Development builds do not follow semantic versioning.
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := context.Background()
	var out io.Writer = os.Stdout
	if cmd != nil {
		out = cmd.OutOrStdout()
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
	}

	fmt.Fprintf(out, "Current version: %s\n", currentVersion)
	fmt.Fprintln(out, "Checking for updates...")

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(githubRepoSlug))
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest release for %s could not be found", githubRepoSlug)
	}

	if !latest.GreaterThan(currentVersion) {
		fmt.Fprintln(out, "Current version is the latest.")
		return nil
	}

	fmt.Fprintf(out, "Found newer version: %s (published at %s)\n", latest.Version(), latest.PublishedAt)
	fmt.Fprintf(out, "Release notes:\n%s\n", latest.ReleaseNotes)

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintf(out, "Updating %s to version %s...\n", exe, latest.Version())
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
