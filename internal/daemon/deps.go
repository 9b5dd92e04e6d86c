// SPDX-License-Identifier: MIT

package daemon

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

var (
	ErrMissingLogger         = errors.New("daemon: logger is required")
	ErrMissingAPIHandler     = errors.New("daemon: API handler is required")
	ErrMissingMetricsHandler = errors.New("daemon: metrics listener configured without a handler")
	ErrMissingManager        = errors.New("daemon: manager is required")
	// ErrManagerNotStarted is returned by Shutdown before Start.
	ErrManagerNotStarted = errors.New("daemon: manager not started")
)

// Deps are the servers the Manager runs.
type Deps struct {
	Logger     zerolog.Logger
	APIHandler http.Handler

	// MetricsAddr starts a second listener serving MetricsHandler. Empty
	// leaves metrics to the API handler.
	MetricsAddr    string
	MetricsHandler http.Handler
}

// Validate reports the first missing dependency.
func (d *Deps) Validate() error {
	switch {
	case d.Logger.GetLevel() == zerolog.Disabled:
		return ErrMissingLogger
	case d.APIHandler == nil:
		return ErrMissingAPIHandler
	case d.MetricsAddr != "" && d.MetricsHandler == nil:
		return ErrMissingMetricsHandler
	}
	return nil
}
