// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"sync"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// MemorySink keeps artifacts in process memory.
type MemorySink struct {
	mu        sync.RWMutex
	snapshots map[model.Asset]dailyrun.Snapshot
	progress  map[model.Asset]*model.State
	timeline  map[model.Asset][]dailyrun.TimelineEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		snapshots: make(map[model.Asset]dailyrun.Snapshot),
		progress:  make(map[model.Asset]*model.State),
		timeline:  make(map[model.Asset][]dailyrun.TimelineEntry),
	}
}

func (m *MemorySink) WriteSnapshot(_ context.Context, asset model.Asset, snap dailyrun.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.State = snap.State.Clone()
	m.snapshots[asset] = snap
	return nil
}

func (m *MemorySink) WriteProgress(_ context.Context, asset model.Asset, st *model.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[asset] = st.Clone()
	return nil
}

func (m *MemorySink) WriteTimeline(_ context.Context, asset model.Asset, e dailyrun.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeline[asset] = append(m.timeline[asset], e)
	return nil
}

func (m *MemorySink) LatestSnapshot(_ context.Context, asset model.Asset) (dailyrun.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[asset]
	if !ok {
		return dailyrun.Snapshot{}, ErrNotFound
	}
	snap.State = snap.State.Clone()
	return snap, nil
}

func (m *MemorySink) Progress(_ context.Context, asset model.Asset) (*model.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.progress[asset]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *MemorySink) Timeline(_ context.Context, asset model.Asset, limit int) ([]dailyrun.TimelineEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.timeline[asset]
	out := make([]dailyrun.TimelineEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *MemorySink) Close() error { return nil }
