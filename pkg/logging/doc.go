// Package logging provides mcpconnect's subsystem-oriented logger on top of
// log/slog.
//
// Every entry carries a subsystem attribute so output from the detector,
// the metadata resolver, the store and the HTTP API can be filtered apart.
//
// # Usage Examples
//
//	logging.Init(logging.OptionsFromEnv()) // LOG_LEVEL, LOG_FORMAT=text|json
//
//	logging.Info("Bootstrap", "Listening on %s", addr)
//	logging.Debug("MetadataResolver", "Fetching %s", wellKnownURL)
//	logging.Error("TokenExchanger", err, "Exchange failed for %s", serverID)
//
// # Audit
//
// Security-relevant steps of an authorization flow are recorded with Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:   "callback_completed",
//	    ServerID: id,
//	    Outcome:  "success",
//	})
//
// Token values, client secrets and PKCE verifiers are never logged.
package logging
