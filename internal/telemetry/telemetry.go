// Package telemetry wires the OpenTelemetry SDK for cmd/substrate, gated by
// config.TelemetryConfig.Enabled exactly as the teacher's
// internal/telemetry/telemetry.go gates its own Init.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/agentmesh/substrate/config"
)

// Providers bundles the tracer and meter providers so callers can shut both
// down together.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *metric.MeterProvider
}

// Init connects to cfg.OTLPEndpoint and installs both providers as the
// global otel providers. A disabled config returns a no-op Providers whose
// Shutdown is a no-op, mirroring the teacher's "telemetry is always safe to
// defer-shutdown" idiom.
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Providers{}, nil
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	logger.Info("telemetry initialized", zap.String("service", cfg.ServiceName), zap.String("endpoint", cfg.OTLPEndpoint))
	return &Providers{tp: tp, mp: mp}, nil
}

// Shutdown flushes and stops both providers. Safe to call on a disabled
// (zero-value-backed) Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
