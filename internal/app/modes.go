package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcpconnect/internal/config"
	"mcpconnect/internal/registry"
	"mcpconnect/internal/server"
	"mcpconnect/pkg/logging"
)

// runServer syncs the server definitions, watches the definitions
// directory and serves the HTTP API.
//
// Signal Handling:
//   - SIGINT (Ctrl+C): Triggers graceful shutdown
//   - SIGTERM: Triggers graceful shutdown (common in container environments)
func runServer(ctx context.Context, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := services.Syncer.Sync(ctx)
	if err != nil {
		logging.Error("Serve", err, "Failed to sync server definitions")
		return err
	}
	logging.Info("Serve", "Server definitions synced: %s", result)

	if services.DefinitionsDir != "" {
		watcher, err := services.Syncer.Watch(ctx, registry.DefaultDebounce)
		if err != nil {
			logging.Warn("Serve", "Not watching %s: %v", services.DefinitionsDir, err)
		} else {
			defer watcher.Stop()
		}
	}

	srv := server.New(server.ConfigFrom(services.Config), services.Manager)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = shutdown(srv, services.Config.Server.ShutdownTimeout)
		return err
	case <-ctx.Done():
		logging.Info("Serve", "Shutting down")
	}

	if err := shutdown(srv, services.Config.Server.ShutdownTimeout); err != nil {
		logging.Error("Serve", err, "Graceful shutdown failed")
		return err
	}
	return <-errCh
}

func shutdown(srv *server.Server, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
