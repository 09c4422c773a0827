package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TraceConfig configures the OTLP trace exporter.
type TraceConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, host:port.
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// ServiceName overrides the reported service name
	// (default "sessiontree").
	ServiceName string
}

// SetupTracing wires an OTLP/HTTP span exporter into a tracer provider,
// installs it as the global provider, and returns a shutdown function
// that flushes pending spans.
func SetupTracing(ctx context.Context, cfg TraceConfig) (func(context.Context) error, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "sessiontree"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
