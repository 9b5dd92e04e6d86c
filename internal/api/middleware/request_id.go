// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ManuGH/fractal/internal/log"
)

// HeaderRequestID carries the request correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen caps client-supplied ids before they reach the logs.
const maxRequestIDLen = 128

// RequestID adds a unique ID to every request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
