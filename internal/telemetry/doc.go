// Package telemetry sets up OpenTelemetry metrics and tracing for the OAuth
// flow. When disabled, no-op providers are installed and recording is free.
package telemetry
