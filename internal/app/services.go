package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/mcp-oauth/security"

	"mcpconnect/internal/config"
	"mcpconnect/internal/mcpserver"
	"mcpconnect/internal/oauth"
	"mcpconnect/internal/registry"
	"mcpconnect/internal/store"
	"mcpconnect/internal/telemetry"
	"mcpconnect/pkg/logging"
)

// Services holds the wired components of a running mcpconnect.
//
// Initialization order:
//  1. StatusStore with the configured backend and optional encryption
//  2. Telemetry provider
//  3. OAuth Manager over the store
//  4. Registry syncer and MCP Connector
type Services struct {
	Config    config.Config
	PublicURL config.PublicURL

	Store     *store.Store
	Telemetry *telemetry.Provider
	Manager   *oauth.Manager
	Syncer    *registry.Syncer
	Connector *mcpserver.Connector

	// DefinitionsDir is where `servers add` writes definitions.
	DefinitionsDir string
}

// InitializeServices wires every component for cfg. A missing public URL
// is logged but not fatal: servers without OAuth keep working and OAuth
// checks fail with a Misconfiguration error.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	loaded := *cfg.Loaded

	st, err := OpenStore(ctx, loaded.Storage)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "mcpconnect",
		ServiceVersion: cfg.Version,
		Enabled:        loaded.Telemetry.Enabled,
		Exporter:       loaded.Telemetry.Exporter,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	publicURL := config.ResolvePublicURL(loaded)
	if err := publicURL.Err(); err != nil {
		logging.Error("Bootstrap", err, "OAuth authorization is unavailable until the public URL is configured")
	} else {
		base, _ := publicURL.Base()
		logging.Debug("Bootstrap", "Public URL resolved to %s", base)
	}

	manager := oauth.NewManager(st, oauth.ManagerConfig{
		PublicURL:          publicURL,
		CallbackPath:       loaded.OAuth.CallbackPath,
		ClientName:         loaded.OAuth.ClientName,
		DefaultScopes:      loaded.OAuth.Scopes,
		ProbeTimeout:       loaded.OAuth.ProbeTimeout,
		HTTPTimeout:        loaded.OAuth.HTTPTimeout,
		MetadataCacheTTL:   loaded.OAuth.MetadataCacheTTL,
		InitialAccessToken: loaded.OAuth.InitialAccessToken,
		HTTPClient:         &http.Client{},
		Metrics:            tp.Metrics(),
		Tracer:             tp.Tracer(),
	})

	definitionsDir := ""
	if cfg.ConfigPath != "" {
		definitionsDir = registry.Dir(cfg.ConfigPath)
	}

	return &Services{
		Config:         loaded,
		PublicURL:      publicURL,
		Store:          st,
		Telemetry:      tp,
		Manager:        manager,
		Syncer:         registry.NewSyncer(st, definitionsDir, loaded.Servers),
		Connector:      mcpserver.NewConnector(st, manager.Provider(), manager, mcpserver.ConnectorOptions{ClientVersion: cfg.Version}),
		DefinitionsDir: definitionsDir,
	}, nil
}

// OpenStore creates the StatusStore for the configured backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (*store.Store, error) {
	var backend store.Backend
	switch cfg.Type {
	case config.StorageTypeMemory:
		backend = store.NewMemoryBackend()
	case config.StorageTypeFile, "":
		fb, err := store.NewFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend = fb
	case config.StorageTypeFirestore:
		fb, err := store.NewFirestoreBackend(ctx, cfg.Firestore.ProjectID, cfg.Firestore.Database, cfg.Firestore.Collection)
		if err != nil {
			return nil, err
		}
		backend = fb
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}

	var opts []store.Option
	if cfg.EncryptionKey != "" {
		key, err := security.KeyFromBase64(cfg.EncryptionKey)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("invalid storage encryption key: %w", err)
		}
		enc, err := security.NewEncryptor(key)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		opts = append(opts, store.WithEncryptor(enc))
		logging.Info("Bootstrap", "Encrypting secrets at rest with AES-256-GCM")
	}

	logging.Debug("Bootstrap", "Using %s storage backend", cfg.Type)
	return store.New(backend, opts...), nil
}

// Close flushes telemetry and closes the store.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Telemetry != nil {
		if err := s.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
