package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpconnect/internal/config"
	"mcpconnect/internal/store"
	pkgoauth "mcpconnect/pkg/oauth"
)

func testConfig(t *testing.T, mutate func(cfg *config.Config)) *Config {
	t.Helper()
	loaded := config.GetDefaultConfig()
	loaded.Storage.Type = config.StorageTypeMemory
	loaded.ListenAddress = "127.0.0.1:0"
	loaded.PublicURL = "https://chat.example.com"
	if mutate != nil {
		mutate(&loaded)
	}
	cfg := NewConfig(false, true, t.TempDir(), "test")
	cfg.Loaded = &loaded
	return cfg
}

func TestNewApplication(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, func(c *config.Config) {
		c.Servers = []config.ServerDefinition{{ID: "github", Name: "GitHub", URL: "https://api.example.com/mcp"}}
	})

	application, err := NewApplication(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(ctx) })

	services := application.Services()
	require.NotNil(t, services.Manager)
	require.NotNil(t, services.Connector)
	assert.NoError(t, services.PublicURL.Err())
	assert.Equal(t, filepath.Join(cfg.ConfigPath, "servers"), services.DefinitionsDir)

	result, err := services.Syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	rec, err := services.Store.Get(ctx, "github")
	require.NoError(t, err)
	assert.Equal(t, pkgoauth.StatusUnknown, rec.OAuthStatus)
}

func TestNewApplication_MissingPublicURLIsNotFatal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, func(c *config.Config) { c.PublicURL = "" })

	application, err := NewApplication(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(ctx) })

	assert.ErrorIs(t, application.Services().PublicURL.Err(), config.ErrPublicURLMissing)
}

func TestNewApplication_LoadsConfigFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
environment: development
storage:
  type: memory
`), 0o600))

	application, err := NewApplication(ctx, NewConfig(false, true, dir, "test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(ctx) })

	services := application.Services()
	base, err := services.PublicURL.Base()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultDevelopmentPublicURL, base)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	key, err := security.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr string
	}{
		{name: "memory", cfg: config.StorageConfig{Type: config.StorageTypeMemory}},
		{name: "file", cfg: config.StorageConfig{Type: config.StorageTypeFile, Path: t.TempDir()}},
		{name: "file with encryption", cfg: config.StorageConfig{Type: config.StorageTypeFile, Path: t.TempDir(), EncryptionKey: security.KeyToBase64(key)}},
		{name: "file without path", cfg: config.StorageConfig{Type: config.StorageTypeFile}, wantErr: "cannot be empty"},
		{name: "unsupported", cfg: config.StorageConfig{Type: "etcd"}, wantErr: "unsupported storage type"},
		{name: "bad key", cfg: config.StorageConfig{Type: config.StorageTypeMemory, EncryptionKey: "not-base64!"}, wantErr: "invalid storage encryption key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := OpenStore(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })

			_, created, err := st.Register(ctx, store.Definition{ID: "docs", URL: "https://docs.example.com/mcp"})
			require.NoError(t, err)
			assert.True(t, created)
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, nil)
	application, err := NewApplication(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
