// Package config loads mcpconnect's configuration.
//
// Configuration lives in a single directory (default ~/.config/mcpconnect):
//
//	config.yaml        main configuration (Config)
//	servers/*.yaml     one ServerDefinition per file, synced by the registry
//	servers-state/     record files of the file storage backend
//
// A handful of values can be overridden from the environment
// (MCPCONNECT_ENV, MCPCONNECT_PUBLIC_URL, MCPCONNECT_LISTEN_ADDRESS,
// MCPCONNECT_ENCRYPTION_KEY).
//
// The public base URL is resolved exactly once with ResolvePublicURL. In
// production a missing value is a fatal misconfiguration for the OAuth flow;
// in development it falls back to http://localhost:3000.
package config
