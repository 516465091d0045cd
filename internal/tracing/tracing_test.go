package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/config"
)

func TestSetup_DisabledInstallsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OtelConfig{ServiceName: "notification-service"}, "test", zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := otel.Tracer("t").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestSetup_Enabled(t *testing.T) {
	cfg := config.OtelConfig{ExporterEndpoint: "http://127.0.0.1:4318", ServiceName: "notification-service"}
	shutdown, err := Setup(context.Background(), cfg, "test", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := otel.Tracer("t").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
