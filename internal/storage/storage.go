// SPDX-License-Identifier: MIT

// Package storage persists daily run artifacts: the latest snapshot and
// warmup progress per asset, and an append-only timeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// ErrNotFound is returned by readers when nothing was written yet.
var ErrNotFound = errors.New("storage: not found")

// Sink writes and reads run artifacts.
type Sink interface {
	dailyrun.Storage

	LatestSnapshot(ctx context.Context, asset model.Asset) (dailyrun.Snapshot, error)
	Progress(ctx context.Context, asset model.Asset) (*model.State, error)
	// Timeline returns entries newest first. limit <= 0 returns all.
	Timeline(ctx context.Context, asset model.Asset, limit int) ([]dailyrun.TimelineEntry, error)
	Close() error
}

// Open returns the sink for backend. path is a directory for "file" and
// "badger" and ignored for "memory".
func Open(backend, path string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "memory":
		return NewMemorySink(), nil
	case "file", "":
		if path == "" {
			return nil, fmt.Errorf("file storage requires a path")
		}
		return NewFileSink(path)
	case "badger":
		if path == "" {
			return nil, fmt.Errorf("badger storage requires a path")
		}
		return OpenBadgerSink(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// timelineKey sorts chronologically as a string.
func timelineKey(e dailyrun.TimelineEntry) string {
	return e.TS.UTC().Format("20060102T150405.000000000Z") + "-" + e.RunID
}
