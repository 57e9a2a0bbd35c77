// Package observability wires OpenTelemetry trace export.
//
// Spans are exported over OTLP HTTP to a local collector or agent.
// Export is opt-in: an empty endpoint leaves the global tracer
// provider untouched, so spans created elsewhere become no-ops.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/haven-app/haven/internal/log"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint, host:port. Empty disables
	// export.
	Endpoint string
	// ServiceName tags exported spans (default: haven).
	ServiceName string
	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string
}

// Setup configures the global tracer provider to export spans to the
// configured endpoint. The returned shutdown function flushes pending
// spans; it is never nil.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled, no endpoint configured")
		return noop, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "haven"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		// Tracing is best-effort; the app runs without it.
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		logger.Warn("failed to build trace resource, tracing disabled", "error", err)
		return noop, nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)
	return provider.Shutdown, nil
}
