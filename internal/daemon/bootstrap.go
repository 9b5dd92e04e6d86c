// SPDX-License-Identifier: MIT

// Package daemon wires the lifecycle services into a running process and
// manages its servers and background loops.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/fractal/internal/alerts"
	"github.com/ManuGH/fractal/internal/api"
	"github.com/ManuGH/fractal/internal/api/middleware"
	"github.com/ManuGH/fractal/internal/audit"
	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/config"
	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	lcmanager "github.com/ManuGH/fractal/internal/domain/lifecycle/manager"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
	"github.com/ManuGH/fractal/internal/forecast"
	"github.com/ManuGH/fractal/internal/health"
	"github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/storage"
	"github.com/ManuGH/fractal/internal/telemetry"
)

// RunStaleAfter is how old the last run may get before health degrades.
const RunStaleAfter = 26 * time.Hour

// Runtime is a fully wired daemon.
type Runtime struct {
	App          *App
	API          *api.Server
	Lifecycle    *lcmanager.Manager
	Orchestrator *dailyrun.Orchestrator
	Health       *health.Manager
}

// Options tweak Bootstrap for embedding and tests.
type Options struct {
	// Loader enables the config watcher; nil runs without hot reload.
	Loader *config.Loader
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Logger defaults to the "daemon" component logger.
	Logger zerolog.Logger
}

// Bootstrap opens every backend named in cfg and wires them together.
// Resources opened before a failure are closed again.
func Bootstrap(ctx context.Context, cfg config.Config, opts Options) (rt *Runtime, err error) {
	logger := opts.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = log.WithComponent("daemon")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	var hooks []namedHook
	defer func() {
		if err == nil {
			return
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			_ = hooks[i].hook(context.Background())
		}
	}()
	onShutdown := func(name string, h ShutdownHook) {
		hooks = append(hooks, namedHook{name: name, hook: h})
	}

	if cfg.Telemetry.Enabled {
		tp, terr := telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    cfg.LogService,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Telemetry.Environment,
			ExporterType:   cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			SamplingRate:   cfg.Telemetry.SamplingRate,
		})
		if terr != nil {
			logger.Warn().Err(terr).Str(log.FieldEvent, "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
		} else {
			onShutdown("telemetry", tp.Shutdown)
			logger.Info().
				Str(log.FieldEvent, "telemetry.init").
				Str("endpoint", cfg.Telemetry.Endpoint).
				Float64("sampling_rate", cfg.Telemetry.SamplingRate).
				Msg("telemetry initialized")
		}
	}

	st, err := store.OpenStore(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open lifecycle store: %w", err)
	}
	onShutdown("lifecycle-store", func(context.Context) error { return st.Close() })

	sink, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	onShutdown("storage", func(context.Context) error { return sink.Close() })

	fc, err := forecast.New(forecast.Config{
		Backend:          cfg.Forecast.Backend,
		InfluxURL:        cfg.Forecast.InfluxURL,
		InfluxToken:      cfg.Forecast.InfluxToken,
		InfluxOrg:        cfg.Forecast.InfluxOrg,
		InfluxBucket:     cfg.Forecast.InfluxBucket,
		Measurement:      cfg.Forecast.Measurement,
		PriceMeasurement: cfg.Forecast.PriceMeasurement,
	}, clk)
	if err != nil {
		return nil, fmt.Errorf("open forecast source: %w", err)
	}
	onShutdown("forecast", func(context.Context) error { fc.Close(); return nil })

	alerter, err := alerts.New(ctx, alerts.Config{
		Backend:       cfg.Alerts.Backend,
		RedisAddr:     cfg.Alerts.RedisAddr,
		RedisPassword: cfg.Alerts.RedisPassword,
		RedisDB:       cfg.Alerts.RedisDB,
		Channel:       cfg.Alerts.Channel,
		HistoryLen:    cfg.Alerts.HistoryLen,
		RatePerSecond: cfg.Alerts.RatePerSecond,
		Burst:         cfg.Alerts.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("open alerts backend: %w", err)
	}
	var history api.AlertHistory
	if r, ok := alerts.HistoryOf(alerter); ok {
		history = r
		onShutdown("alerts", func(context.Context) error { return r.Close() })
	}

	auditLogger := audit.NewLogger()
	m := machine.New(machine.Deps{Store: st, Clock: clk, Policy: cfg.Policy})
	lifecycle := lcmanager.New(lcmanager.Deps{Machine: m, Audit: auditLogger})

	orch, err := dailyrun.New(dailyrun.Deps{
		Manager:    lifecycle,
		Storage:    sink,
		Forecaster: fc,
		Alerter:    alerter,
		Hooks:      []dailyrun.Hook{transitionAudit(auditLogger)},
		Clock:      clk,
		Config:     dailyrun.Config{Timeout: cfg.DailyRun.Timeout, StepTimeout: cfg.DailyRun.StepTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("build daily run orchestrator: %w", err)
	}

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewPingChecker("lifecycle_store", st))

	var scheduler Background
	if cfg.DailyRun.Schedule {
		at, perr := dailyrun.ParseTimeOfDay(cfg.DailyRun.At)
		if perr != nil {
			return nil, perr
		}
		scheduler = dailyrun.NewScheduler(orch, at, clk)
		for _, a := range model.Assets() {
			hm.RegisterChecker(health.NewLastRunChecker(a, st, RunStaleAfter, clk.Now))
		}
	}

	metricsHandler := promhttp.Handler()
	apiDeps := api.Deps{
		Lifecycle: lifecycle,
		Runner:    orch,
		Artifacts: sink,
		Alerts:    history,
		Health:    hm,
		Audit:     auditLogger,
		Stack: middleware.StackConfig{
			EnableSecurityHeaders: true,
			EnableMetrics:         true,
			TracingService:        tracingService(cfg),
			EnableLogging:         true,
			RateLimitRPS:          cfg.API.RateLimitRPS,
			RateLimitBurst:        cfg.API.RateLimitBurst,
		},
	}
	// Without a dedicated listener /metrics is served next to the API.
	if cfg.Metrics.ListenAddr == "" {
		apiDeps.Metrics = metricsHandler
	}
	srv, err := api.New(apiDeps)
	if err != nil {
		return nil, err
	}

	mgr, err := NewManager(cfg.API, Deps{
		Logger:         logger,
		APIHandler:     srv.Handler(),
		MetricsAddr:    cfg.Metrics.ListenAddr,
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}

	var watcher Reloader
	if opts.Loader != nil {
		watcher = config.NewWatcher(opts.Loader, cfg, m, auditLogger)
	}

	if _, err := lifecycle.InitAll(ctx); err != nil {
		return nil, fmt.Errorf("initialize lifecycle states: %w", err)
	}

	logger.Info().
		Str(log.FieldEvent, "daemon.bootstrap").
		Str("store", cfg.Store.Backend).
		Str("storage", cfg.Storage.Backend).
		Str("alerts", cfg.Alerts.Backend).
		Str("forecast", cfg.Forecast.Backend).
		Bool("scheduled", cfg.DailyRun.Schedule).
		Msg("daemon wired")

	return &Runtime{
		App:          NewApp(logger, mgr, watcher, scheduler),
		API:          srv,
		Lifecycle:    lifecycle,
		Orchestrator: orch,
		Health:       hm,
	}, nil
}

func tracingService(cfg config.Config) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.LogService
}

// transitionAudit records every status change a daily run makes.
func transitionAudit(a *audit.Logger) dailyrun.Hook {
	return func(ctx context.Context, hc dailyrun.HookContext) error {
		if hc.Transition == "" {
			return nil
		}
		a.LifecycleAction(ctx, "daily_run.transition", string(hc.Asset), "success", map[string]string{
			"run_id":     hc.RunID,
			"transition": hc.Transition,
		})
		return nil
	}
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// IsCleanExit reports whether err from App.Run is a normal shutdown.
func IsCleanExit(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
