// SPDX-License-Identifier: LGPL-3.0-or-later

// Package tracing wires OpenTelemetry spans around the engine's resolve/
// stream/checkpoint operations.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether tracing is enabled and which exporter receives
// spans.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Exporter       string // "jaeger", "otlp", "stdout"
	JaegerEndpoint string
	OTLPEndpoint   string
	SamplingRate   float64
	ExportTimeout  time.Duration
}

// DefaultConfig returns tracing disabled by default, stdout exporter if
// enabled without further configuration.
func DefaultConfig(serviceName string) Config {
	return Config{
		Enabled:        false,
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Exporter:       "stdout",
		JaegerEndpoint: "http://localhost:14268/api/traces",
		OTLPEndpoint:   "localhost:4317",
		SamplingRate:   1.0,
		ExportTimeout:  30 * time.Second,
	}
}

// Provider wraps an OpenTelemetry TracerProvider.
type Provider struct {
	provider *sdktrace.TracerProvider
	config   Config
}

// NewProvider builds a provider per cfg; a disabled config returns a
// no-op provider so callers can always call Tracer/Shutdown.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{provider: sdktrace.NewTracerProvider(), config: cfg}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build tracing resource: %w", err)
	}

	exporter, err := createExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("build tracing exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(cfg.ExportTimeout)),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Provider{provider: provider, config: cfg}, nil
}

func createExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	case "otlp":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		return otlptrace.New(context.Background(), client)
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// Shutdown flushes and stops the underlying provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Tracer returns a named tracer from the provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.provider == nil {
		return otel.Tracer(name)
	}
	return p.provider.Tracer(name)
}

// Span attribute keys used across the engine's traced operations.
var (
	AttrTaskID     = attribute.Key("task.id")
	AttrURL        = attribute.Key("request.url")
	AttrOperation  = attribute.Key("operation")
	AttrBytesTotal = attribute.Key("bytes.total")
	AttrBytesRead  = attribute.Key("bytes.read")
)

// StartResolve traces a resolver.Resolve call.
func StartResolve(ctx context.Context, tracer trace.Tracer, taskID uint32) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.resolve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrTaskID.Int64(int64(taskID))),
	)
}

// StartStream traces a worker's chunked HTTP read/write loop for one task.
func StartStream(ctx context.Context, tracer trace.Tracer, taskID uint32, url string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrTaskID.Int64(int64(taskID)), AttrURL.String(url)),
	)
}

// StartCheckpoint traces a checkpoint store save/load.
func StartCheckpoint(ctx context.Context, tracer trace.Tracer, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("checkpoint.%s", operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrOperation.String(operation)),
	)
}

// RecordError records err on the current span and marks it errored.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
