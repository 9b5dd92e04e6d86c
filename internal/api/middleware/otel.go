// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/fractal/internal/telemetry"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation and
// propagates W3C trace context from incoming headers.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// shouldTrace skips probe and scrape endpoints to reduce noise.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// RouteAttributes renames the active server span to the chi route pattern
// once routing is done and records the response status. 4xx stays Ok.
func RouteAttributes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(telemetry.HTTPAttributes(r.Method, route, sw.statusCode)...)
		if sw.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
		}
	})
}

// ExtractTraceContext returns the trace and span ids of the request, or
// empty strings without an active span.
func ExtractTraceContext(r *http.Request) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
