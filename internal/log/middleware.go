// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware writes one access-log line per request. Health and metrics
// probes are logged at debug level.
func Middleware() func(http.Handler) http.Handler {
	access := WithComponent("api.access")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l := withSpan(r.Context(), WithContext(r.Context(), access))
			ev := l.Info()
			switch {
			case status >= 500:
				ev = l.Error()
			case isProbe(r.URL.Path):
				ev = l.Debug()
			}
			ev.Str(FieldEvent, "http.request").
				Str(FieldMethod, r.Method).
				Str(FieldPath, r.URL.Path).
				Int(FieldStatus, status).
				Int("bytes", ww.BytesWritten()).
				Int64(FieldDurationMs, time.Since(start).Milliseconds()).
				Str(FieldRemoteAddr, r.RemoteAddr).
				Msg("request handled")
		})
	}
}

func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
