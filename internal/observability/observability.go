// Package observability wires OpenTelemetry distributed tracing.
//
// Spans are exported over OTLP HTTP to a local collector agent. The agent
// buffers, retries, and forwards to whatever APM backend the deployment
// uses, so the app itself never needs backend credentials.
//
// Tracing is opt-in: with no endpoint configured Setup is a no-op, and an
// exporter that cannot be created only logs a warning. The relay must keep
// answering visitors when the collector is down.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mallhive/concierge/internal/config"
	"github.com/mallhive/concierge/internal/log"
)

// ShutdownFunc flushes pending spans. Call it during graceful shutdown.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider from cfg.
//
// Returns a shutdown function that flushes pending spans. Setup never makes
// tracing fatal: disabled or broken exporters yield a working no-op.
func Setup(ctx context.Context, cfg config.TracingConfig, logger log.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled() {
		logger.Debug("tracing disabled, no endpoint configured")
		return noopShutdown, nil
	}

	// Local collector agent, plain HTTP.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noopShutdown, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tp.Shutdown, nil
}
