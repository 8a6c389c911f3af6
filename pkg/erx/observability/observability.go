// Package observability wires OpenTelemetry tracing and RED (Rate, Errors,
// Duration) metrics around the task/communication/dispense/audit
// operations, generalized from the teacher's core/pkg/observability
// package. Unlike the teacher, which ships an OTLP gRPC exporter, erx-core
// exports spans and metrics through the structured logger so the service
// has no outbound network dependency at startup; swapping in an OTLP
// exporter later only touches New.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkmetricdata "go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the Provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// DefaultConfig returns the defaults used when cmd/erxd is run without
// override flags.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "erx-core",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Enabled:        true,
	}
}

// Provider manages the trace and meter providers for one process and
// exposes the RED metrics every operation records.
type Provider struct {
	config Config
	logger *slog.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// New builds a Provider. When cfg.Enabled is false, New returns a Provider
// whose methods are safe no-ops, mirroring the teacher's disabled-telemetry
// short circuit.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{config: cfg, logger: logger.With("component", "observability")}

	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(&logSpanExporter{logger: p.logger}),
	)
	otel.SetTracerProvider(p.tracerProvider)

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(&logMetricExporter{logger: p.logger}, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.tracer = p.tracerProvider.Tracer("erx-core", trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = p.meterProvider.Meter("erx-core", metric.WithInstrumentationVersion(cfg.ServiceVersion))

	if err := p.initREDMetrics(); err != nil {
		return nil, fmt.Errorf("observability: init RED metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized", "service", cfg.ServiceName, "environment", cfg.Environment)
	return p, nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	p.requestCounter, err = p.meter.Int64Counter("erx.requests.total",
		metric.WithDescription("Total number of operations processed"), metric.WithUnit("{operation}"))
	if err != nil {
		return err
	}
	p.errorCounter, err = p.meter.Int64Counter("erx.errors.total",
		metric.WithDescription("Total number of operation errors"), metric.WithUnit("{error}"))
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("erx.operation.duration",
		metric.WithDescription("Operation duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0))
	if err != nil {
		return err
	}
	p.activeOperations, err = p.meter.Int64UpDownCounter("erx.operations.active",
		metric.WithDescription("Number of currently in-flight operations"), metric.WithUnit("{operation}"))
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "shutdown meter provider", "error", err)
		}
	}
	return nil
}

// TrackOperation starts a span and the RED counters for a named operation
// (e.g. "task.activate", "comm.post") and returns a completion function the
// caller defers with the operation's resulting error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if p == nil || p.tracer == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))

	if p.activeOperations != nil {
		p.activeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.requestCounter != nil {
		p.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.activeOperations != nil {
			p.activeOperations.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.errorCounter != nil {
				p.errorCounter.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))...))
			}
		}
		span.End()
	}
}

// logSpanExporter satisfies sdktrace.SpanExporter by logging completed
// spans through slog, in place of the teacher's OTLP gRPC exporter.
type logSpanExporter struct {
	logger *slog.Logger
}

func (e *logSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.logger.DebugContext(ctx, "span", "name", s.Name(), "duration", s.EndTime().Sub(s.StartTime()), "status", s.Status().Code.String())
	}
	return nil
}

func (e *logSpanExporter) Shutdown(context.Context) error { return nil }

// logMetricExporter satisfies sdkmetric.Exporter by logging collected
// metrics through slog.
type logMetricExporter struct {
	logger *slog.Logger
}

func (e *logMetricExporter) Temporality(sdkmetric.InstrumentKind) sdkmetricdata.Temporality {
	return sdkmetricdata.CumulativeTemporality
}

func (e *logMetricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (e *logMetricExporter) Export(ctx context.Context, rm *sdkmetricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		e.logger.DebugContext(ctx, "metrics collected", "scope", sm.Scope.Name, "count", len(sm.Metrics))
	}
	return nil
}

func (e *logMetricExporter) ForceFlush(context.Context) error { return nil }

func (e *logMetricExporter) Shutdown(context.Context) error { return nil }
