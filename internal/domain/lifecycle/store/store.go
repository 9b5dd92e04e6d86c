// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

var (
	ErrNilState = errors.New("store: update produced nil state for absent asset")
	ErrBadAsset = errors.New("store: state asset does not match key")
)

// UpdateFunc receives a copy of the current state (nil when the asset has
// none yet) and returns the state to persist plus the events to append.
// Returning a nil state with no events is a no-op. Returning an error
// aborts the update; nothing is written.
type UpdateFunc func(cur *model.State) (next *model.State, events []model.Event, err error)

// EventQuery filters the event log. Zero values mean "no filter".
type EventQuery struct {
	Asset    model.Asset
	AfterSeq int64
	Limit    int
}

// Store is the system-of-record for lifecycle states, the lifecycle event
// log and daily run records. It enforces no business rules.
//
// Update is all-or-nothing: the state write and the event appends commit
// together or not at all.
type Store interface {
	// Get returns the state for asset. If absent, it returns (nil, nil).
	Get(ctx context.Context, asset model.Asset) (*model.State, error)
	List(ctx context.Context) ([]*model.State, error)
	// Update returns the resulting state and the appended events with
	// their assigned sequence numbers.
	Update(ctx context.Context, asset model.Asset, fn UpdateFunc) (*model.State, []model.Event, error)

	// Events returns matching events, newest first.
	Events(ctx context.Context, q EventQuery) ([]model.Event, error)
	// LastEventSeq returns the highest assigned sequence number, or 0.
	LastEventSeq(ctx context.Context) (int64, error)

	SaveRun(ctx context.Context, rec *model.RunRecord) error
	// LastRun returns the most recent run for asset, or (nil, nil).
	LastRun(ctx context.Context, asset model.Asset) (*model.RunRecord, error)
	// ListRuns returns runs for asset, newest first. An empty asset lists all.
	ListRuns(ctx context.Context, asset model.Asset, limit int) ([]*model.RunRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// checkNext validates what an UpdateFunc produced.
func checkNext(asset model.Asset, cur, next *model.State, events []model.Event) error {
	if next == nil && cur == nil && len(events) > 0 {
		return ErrNilState
	}
	if next != nil && next.Asset != asset {
		return ErrBadAsset
	}
	return nil
}
