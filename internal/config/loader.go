package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mcpconnect/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/mcpconnect"
	configFileName = "config.yaml"
)

// Environment variables that override config.yaml.
const (
	EnvEnvironment   = "MCPCONNECT_ENV"
	EnvPublicURL     = "MCPCONNECT_PUBLIC_URL"
	EnvListenAddress = "MCPCONNECT_LISTEN_ADDRESS"
	EnvEncryptionKey = "MCPCONNECT_ENCRYPTION_KEY"
)

// GetDefaultConfigPath returns ~/.config/mcpconnect.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath, applies environment
// overrides and validates the result. A missing config.yaml is not an
// error; defaults are used instead.
func LoadConfig(configPath string) (Config, error) {
	cfg := GetDefaultConfig()
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, &ConfigurationError{
			FilePath:  configFilePath,
			ErrorType: "io",
			Message:   "failed to read configuration",
			Details:   err.Error(),
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigurationError{
				FilePath:    configFilePath,
				ErrorType:   "parse",
				Message:     "malformed configuration",
				Details:     err.Error(),
				Suggestions: []string{"Check the YAML syntax and field names in config.yaml"},
			}
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg, configPath)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvEnvironment); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPublicURL); v != "" {
		cfg.PublicURL = v
	}
	if v := os.Getenv(EnvListenAddress); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv(EnvEncryptionKey); v != "" {
		cfg.Storage.EncryptionKey = v
	}
}

// applyDefaults fills values a config file may have zeroed explicitly.
func applyDefaults(cfg *Config, configPath string) {
	defaults := GetDefaultConfig()

	if cfg.Environment == "" {
		cfg.Environment = defaults.Environment
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}
	if cfg.OAuth.CallbackPath == "" {
		cfg.OAuth.CallbackPath = defaults.OAuth.CallbackPath
	}
	if cfg.OAuth.ClientName == "" {
		cfg.OAuth.ClientName = defaults.OAuth.ClientName
	}
	if cfg.OAuth.ProbeTimeout <= 0 {
		cfg.OAuth.ProbeTimeout = defaults.OAuth.ProbeTimeout
	}
	if cfg.OAuth.HTTPTimeout <= 0 {
		cfg.OAuth.HTTPTimeout = defaults.OAuth.HTTPTimeout
	}
	if cfg.OAuth.MetadataCacheTTL <= 0 {
		cfg.OAuth.MetadataCacheTTL = defaults.OAuth.MetadataCacheTTL
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = defaults.Storage.Type
	}
	if cfg.Storage.Path == "" && configPath != "" {
		cfg.Storage.Path = filepath.Join(configPath, StateDirName)
	}
	if cfg.Storage.Firestore.Collection == "" {
		cfg.Storage.Firestore.Collection = defaults.Storage.Firestore.Collection
	}
	if cfg.Server.CallbackRateLimit <= 0 {
		cfg.Server.CallbackRateLimit = defaults.Server.CallbackRateLimit
	}
	if cfg.Server.CallbackBurst <= 0 {
		cfg.Server.CallbackBurst = defaults.Server.CallbackBurst
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = defaults.Server.ReadHeaderTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = defaults.Telemetry.Exporter
	}
	cfg.OAuth.CallbackPath = "/" + strings.Trim(cfg.OAuth.CallbackPath, "/")
}
