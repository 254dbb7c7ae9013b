package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Telemetry manages the trace provider and its graceful shutdown.
// Export failures degrade to no-op tracing; they never crash the
// application.
type Telemetry struct {
	config         Config
	logger         *zap.Logger
	tracerProvider *trace.TracerProvider
}

// Setup validates the config and, when enabled, installs a global
// TracerProvider exporting to the configured OTLP collector. When
// disabled it returns a no-op instance and the process-wide tracers
// stay no-ops.
func Setup(ctx context.Context, config Config, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: config, logger: logger}
	if !config.Enabled {
		return t, nil
	}

	tp, err := newTracerProvider(ctx, config, newResource(config))
	if err != nil {
		// Degrade rather than fail startup: the collector being down
		// should not take the service with it.
		logger.Warn("trace export disabled", zap.Error(err))
		return t, nil
	}
	t.tracerProvider = tp
	otel.SetTracerProvider(tp)

	// W3C trace context propagation.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("trace export enabled",
		zap.String("endpoint", config.Endpoint),
		zap.String("protocol", config.Protocol),
		zap.Float64("sample_rate", config.SampleRate),
	)
	return t, nil
}

// Shutdown flushes pending spans and shuts the provider down. Safe to
// call on a disabled instance.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}
	return t.tracerProvider.Shutdown(ctx)
}

// Enabled reports whether an exporting provider was installed.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.tracerProvider != nil
}
