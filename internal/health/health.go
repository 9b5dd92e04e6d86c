// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks for fractald.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/fractal/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultCheckTimeout bounds one checker during a probe.
const DefaultCheckTimeout = 2 * time.Second

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version string
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version, timeout: DefaultCheckTimeout}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// runChecks executes all checkers concurrently and folds their status.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	if len(checkers) == 0 {
		return nil, StatusHealthy
	}

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = c.Check(cctx)
		}()
	}
	wg.Wait()

	checks := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy
	for i, c := range checkers {
		checks[c.Name()] = results[i]
		switch results[i].Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return checks, overall
}

// Health performs a liveness check. Only verbose probes run the checkers.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if verbose {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready reports whether the daemon can serve traffic. Degraded checks keep
// it ready; any unhealthy check does not.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	checks, status := m.runChecks(ctx)
	return ReadinessResponse{
		Ready:     status != StatusUnhealthy,
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// ServeHealth handles HTTP health check requests. Always 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		logger.Warn().
			Str(log.FieldEvent, "readiness.not_ready").
			Str(log.FieldStatus, string(resp.Status)).
			Msg("readiness check failed")
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}
}
