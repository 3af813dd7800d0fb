package app

import "mcpconnect/internal/config"

// Config holds the bootstrap settings taken from the command line.
type Config struct {
	// Debug enables debug logging.
	Debug bool

	// Silent discards log output, for commands that print their own.
	Silent bool

	// ConfigPath is the configuration directory. Empty uses
	// ~/.config/mcpconnect.
	ConfigPath string

	// Version is reported in the initialize request and telemetry.
	Version string

	// Loaded is filled by NewApplication. Tests may set it to skip
	// loading config.yaml.
	Loaded *config.Config
}

// NewConfig creates a bootstrap configuration.
func NewConfig(debug, silent bool, configPath, version string) *Config {
	return &Config{
		Debug:      debug,
		Silent:     silent,
		ConfigPath: configPath,
		Version:    version,
	}
}
