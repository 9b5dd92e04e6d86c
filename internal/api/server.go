// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the lifecycle and daily run operations over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/api/middleware"
	"github.com/ManuGH/fractal/internal/audit"
	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/manager"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/health"
	"github.com/ManuGH/fractal/internal/log"
)

var ErrMissingDeps = errors.New("api: missing dependency")

// Runner triggers a daily run.
type Runner interface {
	RunDailyPipeline(ctx context.Context, asset model.Asset, mode model.RunMode) (*model.RunResult, error)
}

// ArtifactReader reads what the daily run wrote to storage.
type ArtifactReader interface {
	LatestSnapshot(ctx context.Context, asset model.Asset) (dailyrun.Snapshot, error)
	Progress(ctx context.Context, asset model.Asset) (*model.State, error)
	Timeline(ctx context.Context, asset model.Asset, limit int) ([]dailyrun.TimelineEntry, error)
}

// AlertHistory is implemented by alert backends that retain history.
type AlertHistory interface {
	Recent(ctx context.Context, n int) ([]dailyrun.Alert, error)
}

// Deps holds everything the API serves.
type Deps struct {
	Lifecycle *manager.Manager
	Runner    Runner
	Artifacts ArtifactReader
	// Alerts is optional; without it /api/ops/alerts answers 404.
	Alerts  AlertHistory
	Health  *health.Manager
	Audit   *audit.Logger
	Metrics http.Handler
	Stack   middleware.StackConfig
	Logger  zerolog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	lifecycle *manager.Manager
	runner    Runner
	artifacts ArtifactReader
	alerts    AlertHistory
	health    *health.Manager
	audit     *audit.Logger
	metrics   http.Handler
	stack     middleware.StackConfig
	validate  *validator.Validate
	logger    zerolog.Logger
}

func New(deps Deps) (*Server, error) {
	if deps.Lifecycle == nil || deps.Runner == nil || deps.Artifacts == nil {
		return nil, ErrMissingDeps
	}
	logger := deps.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = log.WithComponent("api")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger()
	}
	return &Server{
		lifecycle: deps.Lifecycle,
		runner:    deps.Runner,
		artifacts: deps.Artifacts,
		alerts:    deps.Alerts,
		health:    deps.Health,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		stack:     deps.Stack,
		validate:  newValidator(),
		logger:    logger,
	}, nil
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(s.stack)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(withActor)

		r.Route("/lifecycle", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/events", s.handleEvents)
			r.Post("/init", s.handleInit)
			r.Get("/{modelId}/status", s.handleStatus)

			r.Post("/actions/force-warmup", s.handleForceWarmup)
			r.Post("/actions/force-apply", s.handleForceApply)
			r.Post("/actions/revoke", s.handleRevoke)
			r.Post("/actions/reset-simulation", s.handleResetSimulation)

			r.Post("/constitution/apply", s.handleConstitution)
			r.Post("/drift/update", s.handleDrift)
			r.Post("/samples/increment", s.handleSamples)
			r.Post("/integrity/check", s.handleIntegrity)
			r.Post("/check-promotion", s.handleCheckPromotion)
		})

		r.Route("/ops", func(r chi.Router) {
			r.Post("/daily-run/run-now", s.handleRunNow)
			r.Get("/daily-run/status", s.handleRunStatus)
			r.Get("/daily-run/history", s.handleRunHistory)
			r.Get("/daily-run/timeline", s.handleTimeline)
			r.Get("/daily-run/snapshot", s.handleSnapshot)
			r.Get("/daily-run/progress", s.handleProgress)
			r.Get("/alerts/recent", s.handleRecentAlerts)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Error: "method not allowed"})
	})
	return r
}

// withActor attributes audited actions to the caller's address.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := audit.ContextWithActor(r.Context(), "api:"+host)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
