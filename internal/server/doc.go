// Package server exposes the OAuth flow of mcpconnect over HTTP.
//
// # Routes
//
//	POST /api/mcp-servers/{id}/oauth/check   run check(serverId), JSON CheckResult
//	GET  /api/oauth/callback/{id}            authorization server redirect target
//	GET  /api/mcp-servers/oauth/status       records with redacted tokens
//	GET  /health                             liveness
//
// The callback prefix follows the configured callback path, so redirect
// URIs registered with authorization servers always resolve here.
//
// # Errors
//
// Check answers 200 for every flow outcome, including step failures,
// which are reported in the "error" field. Unknown servers give 404, a
// concurrent authorization gives 409 and a missing public URL gives 500.
// The callback always redirects to "/" with oauth_success or oauth_error.
//
// # Security
//
// Every response carries the security headers of mcp-oauth and an
// X-Request-ID. The check and callback routes are rate limited per client
// IP.
package server
