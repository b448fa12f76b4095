// Package telemetry provides OpenTelemetry tracing and metrics setup for
// the Neural Engine's suspension points (spec.md §5): device I/O, ledger
// writes, KMS signing, and store reads/writes all take a context. No
// other package opens spans through it. Metrics collected here are exported through
// the same Prometheus registry as pkg/metrics, via the otel Prometheus
// bridge, so both hand-rolled and otel-derived metrics show up on one
// /metrics endpoint.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider holds the process-wide tracer and meter providers. One
// Provider is built at startup and handed to every component that needs
// to open spans or record otel instruments.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	tracer trace.Tracer
	meter  metric.Meter
}

// New builds a Provider for serviceName, registering its Prometheus
// exporter against registry so otel-derived metrics share the process's
// metrics endpoint.
func New(serviceName string, registry *prometheus.Registry) (*Provider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	tp := sdktrace.NewTracerProvider()

	return &Provider{
		TracerProvider: tp,
		MeterProvider:  mp,
		tracer:         tp.Tracer(serviceName),
		meter:          mp.Meter(serviceName),
	}, nil
}

// Tracer returns the provider's tracer, used to open spans around
// suspension points.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the provider's meter, used for otel-native instruments.
func (p *Provider) Meter() metric.Meter { return p.meter }

// StartSpan is a convenience wrapper for the "open a span around a
// suspension point" pattern. No other package of the engine calls it.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// Shutdown flushes and stops the tracer and meter providers. It should be
// called once, during process shutdown.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
	}
	return nil
}
