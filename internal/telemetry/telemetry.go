// Package telemetry configures the OpenTelemetry trace pipeline.
// Disabled unless an OTLP endpoint is configured; spans are then
// exported over HTTP with the service identity attached.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configure the exporter.
type Options struct {
	Endpoint    string // host:port of the OTLP HTTP collector, "" disables tracing
	Insecure    bool
	ServiceName string
	Version     string
}

// Setup installs the global tracer provider and returns a shutdown
// function. With no endpoint configured it is a no-op and span
// creation stays free.
func Setup(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "vendo"
	}

	expOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		expOpts = append(expOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	slog.Info("tracing enabled", "endpoint", opts.Endpoint, "service", opts.ServiceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(ctx)
	}, nil
}
