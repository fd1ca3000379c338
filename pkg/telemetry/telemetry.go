// Package telemetry provides the engine's optional OpenTelemetry tracing
// and metrics: a span per request, and RED-style
// counters for decisions and signal/action executions. Disabled by
// default; an operator opts in with an OTLP endpoint.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls whether and where telemetry is exported. An empty
// OTLPEndpoint with Enabled true still builds local providers (useful
// for the Noop provider below to be symmetrical with a real one).
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	Insecure     bool
}

// Provider holds the tracer and the request-lifecycle counters the
// engine increments. A nil *Provider is valid and acts as a no-op;
// callers should use Noop() rather than a bare zero value so the
// tracer/meter fields are never invoked directly.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	decisions      metric.Int64Counter
	signalRuns     metric.Int64Counter
	actionRuns     metric.Int64Counter
}

// Noop returns a Provider whose Start/Record methods are safe to call
// but do nothing, for the common case of telemetry being disabled.
func Noop() *Provider { return &Provider{tracer: noop.NewTracerProvider().Tracer("warden")} }

// New builds exporters and providers against cfg.OTLPEndpoint. Callers
// must call Shutdown on the returned Provider before process exit so
// batched spans and metrics flush.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("warden")),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("warden")
	decisions, err := meter.Int64Counter("warden.decisions", metric.WithDescription("final decisions by kind"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: decisions counter: %w", err)
	}
	signalRuns, err := meter.Int64Counter("warden.signal_runs", metric.WithDescription("signal script executions"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: signal counter: %w", err)
	}
	actionRuns, err := meter.Int64Counter("warden.action_runs", metric.WithDescription("action script executions"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: action counter: %w", err)
	}

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("warden"),
		decisions:      decisions,
		signalRuns:     signalRuns,
		actionRuns:     actionRuns,
	}, nil
}

// StartSpan starts a span named name. The returned end func must be
// deferred by the caller; it is safe to call on a nil or Noop provider.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	if p == nil {
		return ctx, func() {}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// RecordDecision increments the decisions counter for kind, tagged with
// the event kind of the request that produced it.
func (p *Provider) RecordDecision(ctx context.Context, kind, eventKind string) {
	if p == nil || p.decisions == nil {
		return
	}
	p.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("event_kind", eventKind),
	))
}

// RecordSignalRun increments the signal-execution counter.
func (p *Provider) RecordSignalRun(ctx context.Context, name string, success bool) {
	if p == nil || p.signalRuns == nil {
		return
	}
	p.signalRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("signal", name),
		attribute.Bool("success", success),
	))
}

// RecordActionRun increments the action-execution counter.
func (p *Provider) RecordActionRun(ctx context.Context, success bool) {
	if p == nil || p.actionRuns == nil {
		return
	}
	p.actionRuns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// Shutdown flushes and releases the underlying providers. A no-op on a
// Noop provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracerProvider == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer: %w", err)
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter: %w", err)
		}
	}
	return nil
}
