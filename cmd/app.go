package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"mcpconnect/internal/app"
	"mcpconnect/pkg/logging"
)

// openApplication bootstraps the services. One-shot commands pass silent
// so logs do not mix with their output; --debug turns them back on.
func openApplication(ctx context.Context, silent bool) (*app.Application, error) {
	cfg := app.NewConfig(debug, silent && !debug, configPath, GetVersion())
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

func closeApplication(application *app.Application) {
	if err := application.Close(context.Background()); err != nil {
		logging.Debug("CLI", "Failed to close application: %v", err)
	}
}

// startSpinner shows a progress spinner on stderr until the returned func
// is called. It is a no-op in quiet mode.
func startSpinner(quiet bool, suffix string) func() {
	if quiet {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// useSpinner reports whether a command should animate progress.
func useSpinner(cmd *cobra.Command, quiet bool, tableOutput bool) bool {
	return !quiet && tableOutput && cmd.OutOrStdout() == os.Stdout
}
