// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command fractald runs the model lifecycle service and its daily run
// scheduler.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/fractal/internal/config"
	"github.com/ManuGH/fractal/internal/daemon"
	xglog "github.com/ManuGH/fractal/internal/log"
	"github.com/ManuGH/fractal/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "storage":
			os.Exit(runStorageCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{
		Service: "fractald",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := daemon.WaitForShutdown()
	defer stop()

	// Explicit --config wins; otherwise ${FRACTAL_DATA_DIR}/config.yaml is
	// picked up when present.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	source := "file"
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
		source = "file(auto)"
	}
	if effectiveConfigPath == "" {
		source = "env+defaults"
	}

	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}
	if err := xglog.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level, keeping default")
	}

	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", effectiveConfigPath).
		Msg("configuration loaded")

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting fractald")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Lifecycle store: %s (%s)", cfg.Store.Backend, cfg.Store.Path)
	logger.Info().Msgf("→ Storage: %s (%s)", cfg.Storage.Backend, cfg.Storage.Path)
	if cfg.DailyRun.Schedule {
		logger.Info().Msgf("→ Daily run: %s UTC", cfg.DailyRun.At)
	} else {
		logger.Warn().Msg("→ Daily run scheduler disabled; trigger runs via POST /api/ops/daily-run/run-now")
	}

	loaderForWatch := loader
	if effectiveConfigPath == "" {
		loaderForWatch = nil
	}
	rt, err := daemon.Bootstrap(ctx, cfg, daemon.Options{Loader: loaderForWatch, Logger: logger})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "daemon.bootstrap_failed").
			Msg("failed to wire daemon")
	}

	if err := rt.App.Run(ctx); !daemon.IsCleanExit(err) {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "daemon.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}

func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", config.Defaults().DataDir))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
