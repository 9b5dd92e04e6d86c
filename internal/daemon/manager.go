// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/config"
	"github.com/ManuGH/fractal/internal/log"
)

// ShutdownHook releases one resource. Hooks run after the servers stop, in
// reverse registration order.
type ShutdownHook func(ctx context.Context) error

// Manager owns the API and metrics listeners and the shutdown sequence.
type Manager interface {
	// Start serves until ctx is done or a listener fails, then shuts down.
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type manager struct {
	serverCfg config.APIConfig
	deps      Deps

	apiServer     *http.Server
	metricsServer *http.Server

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager validates deps. A zero ShutdownTimeout takes the default.
func NewManager(serverCfg config.APIConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = config.Defaults().API.ShutdownTimeout
	}

	return &manager{
		serverCfg:     serverCfg,
		deps:          deps,
		logger:        deps.Logger.With().Str(log.FieldComponent, "daemon").Logger(),
		shutdownHooks: make([]namedHook, 0),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	if m.deps.MetricsAddr != "" {
		m.metricsServer = &http.Server{
			Addr:              m.deps.MetricsAddr,
			Handler:           m.deps.MetricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	m.apiServer = &http.Server{
		Addr:              m.serverCfg.ListenAddr,
		Handler:           m.deps.APIHandler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	m.mu.Unlock()

	m.logger.Info().
		Str(log.FieldEvent, "daemon.start").
		Str("listen", m.serverCfg.ListenAddr).
		Dur("read_timeout", m.serverCfg.ReadTimeout).
		Dur("write_timeout", m.serverCfg.WriteTimeout).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)
	if m.metricsServer != nil {
		m.serve("metrics", m.metricsServer, errChan)
	}
	m.serve("api", m.apiServer, errChan)

	var cause error
	select {
	case cause = <-errChan:
		m.logger.Error().Err(cause).Str(log.FieldEvent, "daemon.server_error").Msg("server error, initiating shutdown")
	case <-ctx.Done():
		m.logger.Info().Str(log.FieldEvent, "daemon.signal").Msg("shutdown signal received")
	}

	// The parent is already done; shutdown gets its own bounded context.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	err := m.Shutdown(shutdownCtx)
	switch {
	case cause != nil && err != nil:
		return fmt.Errorf("server error and shutdown failure: %w", errors.Join(cause, err))
	case cause != nil:
		return cause
	}
	return err
}

// serve runs srv until it is shut down. Listen failures go to errChan.
func (m *manager) serve(name string, srv *http.Server, errChan chan<- error) {
	go func() {
		m.logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(log.FieldEvent, "daemon."+name+"_failed").
				Str("addr", srv.Addr).
				Msg("server failed")
			errChan <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	servers := map[string]*http.Server{"api": m.apiServer, "metrics": m.metricsServer}
	m.mu.Unlock()

	m.logger.Info().Str(log.FieldEvent, "daemon.shutdown").Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	// Servers stop first so no request or run races the hooks below.
	for name, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", name, err))
		}
	}

	m.logger.Debug().Int("hooks", len(hooks)).Msg("executing shutdown hooks")
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(hookStart)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Error().
			Int("error_count", len(errs)).
			Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon manager stopped cleanly")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}
