package config

import "time"

// Environment names accepted in Config.Environment.
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// Storage backend types.
const (
	StorageTypeFile      = "file"
	StorageTypeMemory    = "memory"
	StorageTypeFirestore = "firestore"
)

// Telemetry exporters.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config is the top-level mcpconnect configuration loaded from config.yaml.
type Config struct {
	// Environment is "production" (default) or "development". Only
	// development may fall back to a local public URL.
	Environment string `yaml:"environment,omitempty"`

	// PublicURL is the externally reachable base URL of this service.
	// OAuth redirect URIs are derived from it.
	PublicURL string `yaml:"publicUrl,omitempty"`

	// ListenAddress is the address the HTTP API binds to.
	ListenAddress string `yaml:"listenAddress,omitempty"`

	OAuth     OAuthConfig     `yaml:"oauth,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	// Servers are seed definitions registered at startup in addition to
	// the servers/ directory.
	Servers []ServerDefinition `yaml:"servers,omitempty"`
}

// OAuthConfig tunes the client side of the authorization flow.
type OAuthConfig struct {
	// CallbackPath is the fixed path segment in front of the server id in
	// redirect URIs.
	CallbackPath string `yaml:"callbackPath,omitempty"`

	// ClientName prefixes the client_name sent during dynamic registration.
	ClientName string `yaml:"clientName,omitempty"`

	// Scopes are requested when neither the challenge nor the protected
	// resource metadata names any.
	Scopes []string `yaml:"scopes,omitempty"`

	ProbeTimeout     time.Duration `yaml:"probeTimeout,omitempty"`
	HTTPTimeout      time.Duration `yaml:"httpTimeout,omitempty"`
	MetadataCacheTTL time.Duration `yaml:"metadataCacheTTL,omitempty"`

	// InitialAccessToken is sent as a bearer token to registration
	// endpoints that require one (RFC 7591 §3).
	InitialAccessToken string `yaml:"initialAccessToken,omitempty"`
}

// StorageConfig selects the StatusStore backend.
type StorageConfig struct {
	Type string `yaml:"type,omitempty"`

	// Path is the directory of the file backend.
	Path string `yaml:"path,omitempty"`

	// EncryptionKey is a base64-encoded 32 byte key. When set, tokens,
	// client secrets and verifiers are encrypted at rest with AES-256-GCM.
	EncryptionKey string `yaml:"encryptionKey,omitempty"`

	Firestore FirestoreConfig `yaml:"firestore,omitempty"`
}

// FirestoreConfig configures the Firestore backend.
type FirestoreConfig struct {
	ProjectID  string `yaml:"projectId,omitempty"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// CallbackRateLimit is the per-IP request rate on OAuth endpoints.
	CallbackRateLimit int `yaml:"callbackRateLimit,omitempty"`
	CallbackBurst     int `yaml:"callbackBurst,omitempty"`

	// TrustProxy reads the client IP from X-Forwarded-For, skipping
	// TrustedProxyCount proxies from the right.
	TrustProxy        bool `yaml:"trustProxy,omitempty"`
	TrustedProxyCount int  `yaml:"trustedProxyCount,omitempty"`

	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout,omitempty"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout,omitempty"`
}

// TelemetryConfig configures OpenTelemetry metrics and traces.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Exporter string `yaml:"exporter,omitempty"`
}

// ServerDefinition registers a remote MCP HTTP server.
type ServerDefinition struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
	URL  string `yaml:"url"`

	// ClientID and ClientSecret pre-provision an OAuth client for servers
	// whose authorization server has no registration endpoint.
	ClientID                string `yaml:"clientId,omitempty"`
	ClientSecret            string `yaml:"clientSecret,omitempty"`
	TokenEndpointAuthMethod string `yaml:"tokenEndpointAuthMethod,omitempty"`
}

// IsDevelopment reports whether the development fallbacks apply.
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}
