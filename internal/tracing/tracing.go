// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/config"
)

// Shutdown flushes and stops the provider.
type Shutdown func(ctx context.Context) error

// Setup installs an OTLP/HTTP provider when an endpoint is configured and a
// no-op provider otherwise.
func Setup(ctx context.Context, cfg config.OtelConfig, version string, log *zap.SugaredLogger) (Shutdown, error) {
	if !cfg.Enabled() {
		log.Infow("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.ExporterEndpoint))
	if err != nil {
		return nil, errors.Wrap(err, "otlp exporter")
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		log.Warnw("otel resource detection failed", "err", err)
		res = resource.Empty()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Infow("tracing enabled", "endpoint", cfg.ExporterEndpoint, "service", cfg.ServiceName)
	return tp.Shutdown, nil
}
