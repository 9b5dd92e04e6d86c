// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/fractal/internal/config"
	"github.com/ManuGH/fractal/internal/version"
)

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(os.Stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], os.Stdout, os.Stderr)
	case "dump":
		return runConfigDump(args[1:], os.Stdout, os.Stderr)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(os.Stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  fractald config validate [--file|-f config.yaml]")
	_, _ = fmt.Fprintln(w, "  fractald config dump --effective [--file|-f config.yaml] [--format=yaml|json]")
}

func configFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	return fs, &file
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs, file := configFlagSet("fractald config validate", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	if configPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required (no default config.yaml found in $FRACTAL_DATA_DIR)")
		return 2
	}

	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "✓ %s is valid\n", configPath)
	return 0
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs, file := configFlagSet("fractald config dump", stderr)
	var format string
	var effective bool
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	fs.BoolVar(&effective, "effective", false, "dump effective configuration (defaults + file + env)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !effective {
		_, _ = fmt.Fprintln(stderr, "Error: --effective is required")
		return 2
	}

	// Without a file the effective config is defaults + env.
	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}
	redactSecrets(&cfg)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

func redactSecrets(cfg *config.Config) {
	if cfg.Alerts.RedisPassword != "" {
		cfg.Alerts.RedisPassword = "***"
	}
	if cfg.Forecast.InfluxToken != "" {
		cfg.Forecast.InfluxToken = "***"
	}
}
