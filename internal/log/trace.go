package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// WithTraceContext returns the base logger enriched with trace_id and
// span_id when ctx carries a valid span context.
func WithTraceContext(ctx context.Context) zerolog.Logger {
	return withSpan(ctx, WithContext(ctx, Base()))
}

func withSpan(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
