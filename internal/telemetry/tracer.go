// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package telemetry wires OpenTelemetry tracing for fractald. Daily runs
// open one span per run and per step; HTTP requests are traced by the
// router middleware.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is reported when Config.ServiceName is empty.
const DefaultServiceName = "fractald"

const shutdownTimeout = 5 * time.Second

// Config mirrors the telemetry section of the daemon config.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// ExporterType is grpc, http or noop.
	ExporterType string
	// Endpoint is host:port of the OTLP collector (4317 grpc, 4318 http).
	Endpoint string
	// SamplingRate is the fraction of runs traced, clamped to [0, 1].
	SamplingRate float64
}

// Provider owns the global tracer provider. A Provider built from a
// disabled config traces nothing and shuts down instantly.
type Provider struct {
	tp *sdktrace.TracerProvider
}

var exporters = map[string]func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error){
	"grpc": func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	},
	"http": func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	},
}

// NewProvider installs a tracer provider and the W3C propagators globally.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled || cfg.ExporterType == "noop" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	newExporter, ok := exporters[cfg.ExporterType]
	if !ok {
		return nil, fmt.Errorf("unsupported exporter type: %s (supported: grpc, http)", cfg.ExporterType)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	exp, err := newExporter(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s exporter: %w", cfg.ExporterType, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

// Shutdown flushes pending spans, giving up after a few seconds.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return p.tp.Shutdown(ctx)
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
