package logging

import (
	"context"
	"log/slog"
)

// AuditEvent describes a security-relevant step of an authorization flow.
// Secrets never belong in an AuditEvent.
type AuditEvent struct {
	// Action is a short machine-friendly name, e.g. "authorization_started".
	Action string

	// ServerID identifies the MCP server the event concerns.
	ServerID string

	// Outcome is "success" or "failure".
	Outcome string

	// Detail carries a human-readable reason or the error kind.
	Detail string

	// RequestID correlates the event with an inbound HTTP request.
	RequestID string
}

// Audit writes an audit line at INFO level under the "Audit" subsystem.
func Audit(event AuditEvent) {
	logger := Logger()

	attrs := []slog.Attr{
		slog.String("subsystem", "Audit"),
		slog.String("action", event.Action),
		slog.String("server_id", event.ServerID),
		slog.String("outcome", event.Outcome),
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}

	logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
