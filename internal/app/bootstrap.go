package app

import (
	"context"
	"fmt"
	"io"

	"mcpconnect/internal/config"
	"mcpconnect/pkg/logging"
)

// Application is a bootstrapped mcpconnect: configuration loaded, logging
// initialized and services wired.
//
// Example usage:
//
//	cfg := app.NewConfig(false, false, "", version)
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close(ctx)
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication performs the bootstrap sequence:
//
//  1. Configures logging from LOG_LEVEL/LOG_FORMAT and the debug flag
//  2. Loads config.yaml from the config path
//  3. Initializes all services
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	opts := logging.OptionsFromEnv()
	if cfg.Debug {
		opts.Level = logging.LevelDebug
	}
	if cfg.Silent {
		opts.Output = io.Discard
	}
	logging.Init(opts)

	if cfg.ConfigPath == "" {
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfg.ConfigPath = path
	}

	if cfg.Loaded == nil {
		loaded, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
		}
		cfg.Loaded = &loaded
	}

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services returns the wired components.
func (a *Application) Services() *Services {
	return a.services
}

// Close releases the store and flushes telemetry.
func (a *Application) Close(ctx context.Context) error {
	return a.services.Close(ctx)
}

// Run serves the HTTP API until ctx is cancelled or a SIGINT/SIGTERM
// arrives.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.services)
}
