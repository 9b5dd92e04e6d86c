// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/fractal/internal/log"
	"github.com/rs/zerolog"
)

// ParseString reads a string from environment variable or returns default value.
// Values of keys that look like secrets are never logged.
func ParseString(key, defaultValue string) string {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (string, error) {
		return v, nil
	})
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(log.WithComponent("config"), key, defaultValue, strconv.Atoi)
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(log.WithComponent("config"), key, defaultValue, time.ParseDuration)
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

// ParseBool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(log.WithComponent("config"), key, defaultValue, parseBool)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}

// parseEnv resolves key with parse, logging where the value came from.
// An empty variable counts as unset.
func parseEnv[T any](logger zerolog.Logger, key string, defaultValue T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		logger.Debug().
			Str("key", key).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		ev := logger.Warn().Str("key", key)
		if !isSensitive(key) {
			ev = ev.Str("value", raw)
		}
		ev.Err(err).Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Interface("value", v)
	}
	ev.Msg("using environment variable")
	return v
}
