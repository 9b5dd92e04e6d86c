// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/fractal/internal/log"
)

// Background is a subsystem that runs until its context is cancelled.
type Background interface {
	Run(ctx context.Context) error
}

// Reloader is a config watcher that can also be triggered by hand.
type Reloader interface {
	Background
	Reload(actor string) error
}

// App owns the long-lived runtime lifecycle (config watcher, reload
// signal, daily run scheduler) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	watcher      Reloader
	scheduler    Background
	reloadSignal os.Signal
}

// NewApp creates a new App. watcher and scheduler may be nil.
func NewApp(logger zerolog.Logger, manager Manager, watcher Reloader, scheduler Background) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		watcher:      watcher,
		scheduler:    scheduler,
		reloadSignal: syscall.SIGHUP,
	}
}

// Manager returns the server manager, mainly to register shutdown hooks.
func (a *App) Manager() Manager { return a.manager }

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The watcher is best-effort: a daemon without hot reload still serves.
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
	}

	if a.watcher != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					// Reload logs and audits its own failures.
					_ = a.watcher.Reload("signal:" + a.reloadSignal.String())
				}
			}
		})
	}

	if a.scheduler != nil {
		g.Go(func() error {
			return a.scheduler.Run(ctx)
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
