package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes recorded on every counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the OAuth flow counters. All Record methods are safe on a
// nil *Metrics.
type Metrics struct {
	Detections    metric.Int64Counter
	Checks        metric.Int64Counter
	Registrations metric.Int64Counter
	Exchanges     metric.Int64Counter
	Refreshes     metric.Int64Counter
	Callbacks     metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.Detections, "mcpconnect.oauth.detections", "OAuth requirement probes by result", "{probe}"},
		{&m.Checks, "mcpconnect.oauth.checks", "Check requests by resulting status", "{check}"},
		{&m.Registrations, "mcpconnect.oauth.registrations", "Dynamic client registrations", "{registration}"},
		{&m.Exchanges, "mcpconnect.oauth.exchanges", "Authorization code exchanges", "{exchange}"},
		{&m.Refreshes, "mcpconnect.oauth.refreshes", "Token refreshes", "{refresh}"},
		{&m.Callbacks, "mcpconnect.oauth.callbacks", "OAuth callbacks handled", "{callback}"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordDetection records a probe. result is "required", "not_required"
// or "unreachable".
func (m *Metrics) RecordDetection(ctx context.Context, serverID, result string) {
	if m == nil {
		return
	}
	m.Detections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server_id", serverID),
		attribute.String("result", result),
	))
}

// RecordCheck records a finished check with the resulting status and the
// error kind, if any.
func (m *Metrics) RecordCheck(ctx context.Context, serverID, status, kind string) {
	if m == nil {
		return
	}
	m.Checks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server_id", serverID),
		attribute.String("status", status),
		attribute.String("kind", kind),
	))
}

// RecordRegistration records a dynamic client registration attempt.
func (m *Metrics) RecordRegistration(ctx context.Context, serverID string, err error) {
	if m == nil {
		return
	}
	addOutcome(ctx, m.Registrations, serverID, err)
}

// RecordExchange records an authorization code exchange.
func (m *Metrics) RecordExchange(ctx context.Context, serverID string, err error) {
	if m == nil {
		return
	}
	addOutcome(ctx, m.Exchanges, serverID, err)
}

func (m *Metrics) RecordRefresh(ctx context.Context, serverID string, err error) {
	if m == nil {
		return
	}
	addOutcome(ctx, m.Refreshes, serverID, err)
}

func (m *Metrics) RecordCallback(ctx context.Context, serverID string, err error) {
	if m == nil {
		return
	}
	addOutcome(ctx, m.Callbacks, serverID, err)
}

func addOutcome(ctx context.Context, counter metric.Int64Counter, serverID string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server_id", serverID),
		attribute.String("outcome", outcome),
	))
}
