// Package store persists the per-server OAuth state of remote MCP servers.
//
// A Record carries the server identity, its oauthStatus and the flow
// fields (client info, tokens, PKCE verifier). The fields a record may
// hold are governed by its Session variant; Record.Apply is the only way
// the flow components change status, and it clears everything the target
// variant does not allow.
//
// Store wraps a Backend (memory, yaml files or Firestore) with per-id
// locking, the single in-flight authorization guard and optional
// AES-256-GCM encryption of secret fields.
package store
