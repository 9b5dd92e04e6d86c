// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "request_id"
	correlationIDKey ctxKey = "correlation_id"
	runIDKey         ctxKey = "run_id"
)

// ContextWithRequestID stores the provided request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores the provided correlation ID in the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithRunID stores the daily run ID in the context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// CorrelationIDFromContext extracts the correlation ID from context if present.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// RunIDFromContext extracts the daily run ID from context if present.
func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if rid := RequestIDFromContext(ctx); rid != "" {
		builder = builder.Str(FieldRequestID, rid)
		added = true
	}
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		builder = builder.Str(FieldCorrelationID, cid)
		added = true
	}
	if run := RunIDFromContext(ctx); run != "" {
		builder = builder.Str(FieldRunID, run)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns a logger from the context, or the base logger if not present.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := Base()
		return &b
	}
	return l
}
