// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress stack shared by the API router.
package middleware

import (
	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/fractal/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	EnableSecurityHeaders bool
	EnableMetrics         bool
	// TracingService empty disables tracing.
	TracingService string
	EnableLogging  bool

	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders)
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
		r.Use(RouteAttributes)
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// Logging wraps handlers and captures full latency.
	if cfg.EnableLogging {
		r.Use(xglog.Middleware())
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(APIRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
}
