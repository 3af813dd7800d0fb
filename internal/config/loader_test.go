package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0644)
	require.NoError(t, err)
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()

	cfg, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, EnvironmentProduction, cfg.Environment)
	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, DefaultOAuthCallbackPath, cfg.OAuth.CallbackPath)
	assert.Equal(t, StorageTypeFile, cfg.Storage.Type)
	assert.Equal(t, filepath.Join(tempDir, StateDirName), cfg.Storage.Path)
	assert.Equal(t, DefaultProbeTimeout, cfg.OAuth.ProbeTimeout)
	assert.Empty(t, cfg.PublicURL)
}

func TestLoadConfig_FileValues(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, `
environment: development
publicUrl: https://connect.example.com/
oauth:
  callbackPath: oauth/cb/
  scopes: [openid, mcp]
  probeTimeout: 3s
storage:
  type: memory
servers:
  - id: github
    name: GitHub
    url: https://mcp.github.example/mcp
`)

	cfg, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "https://connect.example.com/", cfg.PublicURL)
	assert.Equal(t, "/oauth/cb", cfg.OAuth.CallbackPath)
	assert.Equal(t, []string{"openid", "mcp"}, cfg.OAuth.Scopes)
	assert.Equal(t, 3*time.Second, cfg.OAuth.ProbeTimeout)
	assert.Equal(t, DefaultHTTPTimeout, cfg.OAuth.HTTPTimeout)
	assert.Equal(t, StorageTypeMemory, cfg.Storage.Type)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "github", cfg.Servers[0].ID)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, "publicUrl: https://file.example.com\n")

	t.Setenv(EnvPublicURL, "https://env.example.com")
	t.Setenv(EnvEnvironment, "DEVELOPMENT")
	t.Setenv(EnvListenAddress, "127.0.0.1:9000")

	cfg, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.PublicURL)
	assert.Equal(t, EnvironmentDevelopment, cfg.Environment)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, "oauth: [not, a, map\n")

	_, err := LoadConfig(tempDir)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
	assert.Contains(t, cfgErr.DetailedError(), "Suggestions:")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tempDir := t.TempDir()
	writeConfigFile(t, tempDir, `
environment: staging
storage:
  type: postgres
`)

	_, err := LoadConfig(tempDir)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "environment")
	assert.Contains(t, err.Error(), "storage.type")
}
