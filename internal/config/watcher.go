// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/audit"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/log"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// PolicySetter receives reloaded lifecycle policies.
type PolicySetter interface {
	SetPolicy(p model.Policy)
}

// Watcher reloads the config file on change and hot-applies the policy
// section. Every other section needs a restart; changes there are logged.
type Watcher struct {
	loader   *Loader
	target   PolicySetter
	audit    *audit.Logger
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current Config
}

// NewWatcher returns a watcher seeded with the config the daemon started with.
func NewWatcher(loader *Loader, current Config, target PolicySetter, auditLogger *audit.Logger) *Watcher {
	if auditLogger == nil {
		auditLogger = audit.NewLogger()
	}
	return &Watcher{
		loader:   loader,
		target:   target,
		audit:    auditLogger,
		logger:   log.WithComponent("config"),
		debounce: DefaultDebounce,
		current:  current,
	}
}

// SetDebounce overrides DefaultDebounce.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Current returns the last successfully loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the file. An invalid file keeps the running config.
func (w *Watcher) Reload(actor string) error {
	w.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed, keeping current configuration")
		w.audit.ConfigReload(actor, "failure", map[string]string{"error": err.Error()})
		return err
	}

	w.mu.Lock()
	prev := w.current
	w.current.Policy = next.Policy
	w.mu.Unlock()

	details := map[string]string{}
	if next.Policy != prev.Policy {
		w.target.SetPolicy(next.Policy)
		details["policy"] = "applied"
		details["promotion_threshold"] = strconv.Itoa(next.Policy.PromotionThreshold)
	} else {
		details["policy"] = "unchanged"
	}
	if pending := restartRequired(prev, next); len(pending) > 0 {
		w.logger.Warn().
			Str(log.FieldEvent, "config.restart_required").
			Strs("sections", pending).
			Msg("config sections changed that only apply on restart")
		details["restart_required"] = fmt.Sprint(pending)
	}

	w.audit.ConfigReload(actor, "success", details)
	w.logger.Info().Str(log.FieldEvent, "config.reload_success").Msg("configuration reloaded successfully")
	return nil
}

// Run watches the config file until ctx is done. With no config file it
// returns immediately.
func (w *Watcher) Run(ctx context.Context) error {
	path := w.loader.Path()
	if path == "" {
		w.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	// Watch the directory: editors and config management replace the file
	// by rename, which drops a watch held on the file itself.
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	w.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str("path", path).
		Msg("watching config file for changes")

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		target = filepath.Join(dir, name)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(target) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().
				Str(log.FieldEvent, "config.file_changed").
				Str("op", ev.Op.String()).
				Msg("config file changed")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = w.Reload("file-watcher")

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Str(log.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

func restartRequired(prev, next Config) []string {
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("logLevel", prev.LogLevel != next.LogLevel)
	add("dataDir", prev.DataDir != next.DataDir)
	add("api", prev.API != next.API)
	add("metrics", prev.Metrics != next.Metrics)
	add("store", prev.Store != next.Store)
	add("storage", prev.Storage != next.Storage)
	add("alerts", prev.Alerts != next.Alerts)
	add("forecast", prev.Forecast != next.Forecast)
	add("dailyRun", prev.DailyRun != next.DailyRun)
	add("telemetry", prev.Telemetry != next.Telemetry)
	return out
}
