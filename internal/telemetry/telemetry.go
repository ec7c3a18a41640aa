// Package telemetry wires an OpenTelemetry tracer provider the way
// KoordeDHT's internal/telemetry package wires one for the node binary:
// a stdout exporter behind a batching span processor, enabled only when
// configured. Tracing here is strictly observational — spans are opened
// around the coordinator's AddNode, Put and Get (node maintenance opens
// none, and no attributes are recorded), and nothing in the ring ever
// reads back from a span.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig controls whether tracing is active. Where spans go is the
// writer passed to InitTracer.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the telemetry section of the startup configuration.
type Config struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// InitTracer sets up the global tracer provider per cfg and returns a
// shutdown function. When tracing is disabled it leaves the global provider
// untouched (a no-op provider unless something else set one), returns a
// tracer from it and a no-op shutdown, so callers don't need to branch.
func InitTracer(cfg Config, serviceName string, w io.Writer) (trace.Tracer, Shutdown) {
	if !cfg.Tracing.Enabled {
		tp := otel.GetTracerProvider()
		return tp.Tracer(serviceName), func(context.Context) error { return nil }
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		// Tracing is a side channel; a broken exporter shouldn't prevent
		// the ring from running.
		tp := otel.GetTracerProvider()
		return tp.Tracer(serviceName), func(context.Context) error { return nil }
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Tracer(serviceName), func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down tracer provider: %w", err)
		}
		return nil
	}
}
