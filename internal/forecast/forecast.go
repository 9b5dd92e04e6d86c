// SPDX-License-Identifier: MIT

// Package forecast supplies resolved forecast outcomes and market context
// to daily runs. The forecasting engine itself lives elsewhere; this
// package only reads what it produced.
package forecast

import (
	"fmt"
	"strings"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/dailyrun"
)

// Config selects and configures the outcome source.
type Config struct {
	Backend      string // static or influx
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	// Measurement holds resolved outcomes; prices are read from PriceMeasurement.
	Measurement      string
	PriceMeasurement string
}

// Source is a Forecaster that can be closed.
type Source interface {
	dailyrun.Forecaster
	Close()
}

// New builds the configured source.
func New(cfg Config, clk clock.Clock) (Source, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "static":
		return NewStaticSource(StaticConfig{}, clk), nil
	case "influx":
		return NewInfluxSource(InfluxConfig{
			URL:              cfg.InfluxURL,
			Token:            cfg.InfluxToken,
			Org:              cfg.InfluxOrg,
			Bucket:           cfg.InfluxBucket,
			Measurement:      cfg.Measurement,
			PriceMeasurement: cfg.PriceMeasurement,
		}, clk)
	default:
		return nil, fmt.Errorf("unknown forecast backend: %s", cfg.Backend)
	}
}
