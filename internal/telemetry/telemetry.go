package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty.
	DefaultServiceName = "mcpconnect"

	// DefaultServiceVersion is used when Config.ServiceVersion is empty.
	DefaultServiceVersion = "unknown"

	instrumentationName = "mcpconnect/oauth"
)

// Exporters.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config controls the telemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled switches from no-op providers to the SDK.
	Enabled bool

	// Exporter is "stdout" or "none". "none" keeps the SDK (so readers
	// attached in tests still see data) without exporting.
	Exporter string

	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer

	// Reader is an extra metric reader, e.g. a ManualReader in tests.
	Reader sdkmetric.Reader
}

// Provider owns the meter and tracer providers and the metric instruments.
type Provider struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates the providers. With Enabled false it returns no-op
// providers with zero overhead.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = DefaultServiceVersion
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	p := &Provider{}
	if !cfg.Enabled {
		p.meterProvider = noop.NewMeterProvider()
		p.tracerProvider = tracenoop.NewTracerProvider()
	} else if err := p.initSDK(ctx, cfg); err != nil {
		return nil, err
	}

	m, err := NewMetrics(p.meterProvider.Meter(instrumentationName))
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	p.metrics = m
	return p, nil
}

func (p *Provider) initSDK(ctx context.Context, cfg Config) error {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch cfg.Exporter {
	case ExporterStdout:
		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

		traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter))
	case ExporterNone, "":
	default:
		return fmt.Errorf("unsupported telemetry exporter %q", cfg.Exporter)
	}
	if cfg.Reader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(cfg.Reader))
	}

	mp := sdkmetric.NewMeterProvider(meterOpts...)
	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	p.meterProvider = mp
	p.tracerProvider = tp
	p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown, tp.Shutdown)
	return nil
}

// Metrics returns the metric instruments.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Tracer returns the tracer for OAuth flow spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(instrumentationName)
}

// Shutdown flushes and stops the providers. Safe to call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		for _, fn := range p.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
