package config

import "time"

const (
	// DefaultOAuthCallbackPath is the default path for OAuth callbacks.
	// The server id is appended as the final path segment.
	DefaultOAuthCallbackPath = "/api/oauth/callback"

	// DefaultClientName prefixes dynamically registered client names.
	DefaultClientName = "mcpconnect"

	// DefaultDevelopmentPublicURL is used when no public URL is configured
	// in development.
	DefaultDevelopmentPublicURL = "http://localhost:3000"

	DefaultListenAddress = ":3000"

	DefaultProbeTimeout     = 10 * time.Second
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultMetadataCacheTTL = 30 * time.Minute

	// DefaultCallbackRateLimit is the default rate limit per IP (requests/second).
	DefaultCallbackRateLimit = 10
	// DefaultCallbackBurst is the default burst size for IP rate limiting.
	DefaultCallbackBurst = 20

	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second

	DefaultFirestoreCollection = "mcp_servers"

	// StateDirName is the file backend directory under the config path.
	StateDirName = "servers-state"

	// ServersDirName holds one yaml ServerDefinition per file.
	ServersDirName = "servers"
)

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() Config {
	return Config{
		Environment:   EnvironmentProduction,
		ListenAddress: DefaultListenAddress,
		OAuth: OAuthConfig{
			CallbackPath:     DefaultOAuthCallbackPath,
			ClientName:       DefaultClientName,
			ProbeTimeout:     DefaultProbeTimeout,
			HTTPTimeout:      DefaultHTTPTimeout,
			MetadataCacheTTL: DefaultMetadataCacheTTL,
		},
		Storage: StorageConfig{
			Type: StorageTypeFile,
			Firestore: FirestoreConfig{
				Collection: DefaultFirestoreCollection,
			},
		},
		Server: ServerConfig{
			CallbackRateLimit: DefaultCallbackRateLimit,
			CallbackBurst:     DefaultCallbackBurst,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
		Telemetry: TelemetryConfig{
			Exporter: ExporterStdout,
		},
	}
}
