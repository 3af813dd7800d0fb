// Package app bootstraps mcpconnect and manages its lifecycle.
//
// # Bootstrap
//
// NewApplication performs the startup sequence shared by every command:
//
//  1. Logging from LOG_LEVEL, LOG_FORMAT and the --debug flag
//  2. config.yaml from the config directory, with environment overrides
//  3. The StatusStore backend (file, memory or firestore) and, when an
//     encryption key is configured, AES-256-GCM for secrets at rest
//  4. Telemetry, the OAuth Manager, the registry Syncer and the MCP
//     Connector
//
// The public base URL is resolved once here. A missing URL in production
// is logged and kept as a Misconfiguration that every OAuth check
// reports; servers that need no OAuth keep working.
//
// # Serving
//
// Run syncs server definitions from config.yaml and the servers/
// directory, watches that directory for changes and serves the HTTP API
// until the context is cancelled or SIGINT/SIGTERM arrives. Shutdown is
// graceful within server.shutdownTimeout.
//
// # Usage
//
//	cfg := app.NewConfig(debug, false, configPath, version)
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close(ctx)
//	return application.Run(ctx)
package app
