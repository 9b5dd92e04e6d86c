// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// MemoryStore is an in-memory Store intended for tests and local iteration.
// Not durable; not suitable for production.
type MemoryStore struct {
	mu sync.RWMutex

	states map[model.Asset]*model.State
	events []model.Event
	seq    int64

	// asset -> runs, oldest first
	runs map[model.Asset][]*model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[model.Asset]*model.State),
		runs:   make(map[model.Asset][]*model.RunRecord),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Get(ctx context.Context, asset model.Asset) (*model.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[asset].Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*model.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, asset model.Asset, fn UpdateFunc) (*model.State, []model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.states[asset].Clone()
	next, events, err := fn(cur.Clone())
	if err != nil {
		return nil, nil, err
	}
	if err := checkNext(asset, cur, next, events); err != nil {
		return nil, nil, err
	}

	appended := make([]model.Event, 0, len(events))
	for _, ev := range events {
		m.seq++
		ev.Seq = m.seq
		if ev.ModelID == "" {
			ev.ModelID = asset
		}
		m.events = append(m.events, ev)
		appended = append(appended, ev)
	}
	if next == nil {
		return cur, appended, nil
	}
	m.states[asset] = next.Clone()
	return next.Clone(), appended, nil
}

func (m *MemoryStore) Events(ctx context.Context, q EventQuery) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Event{}
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if ev.Seq <= q.AfterSeq {
			break
		}
		if q.Asset != "" && ev.ModelID != q.Asset {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) LastEventSeq(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq, nil
}

func (m *MemoryStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := copyRun(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.runs[rec.Asset] = append(m.runs[rec.Asset], cp)
	m.mu.Unlock()
	return nil
}

// copyRun deep-copies rec through its JSON form, the same encoding the
// sqlite store persists.
func copyRun(rec *model.RunRecord) (*model.RunRecord, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode run record: %w", err)
	}
	var out model.RunRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &out, nil
}

func (m *MemoryStore) LastRun(ctx context.Context, asset model.Asset) (*model.RunRecord, error) {
	runs, err := m.ListRuns(ctx, asset, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, asset model.Asset, limit int) ([]*model.RunRecord, error) {
	m.mu.RLock()
	var all []*model.RunRecord
	for a, rs := range m.runs {
		if asset != "" && a != asset {
			continue
		}
		for i := len(rs) - 1; i >= 0; i-- {
			all = append(all, rs[i])
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].TS.After(all[j].TS) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	for i, rec := range all {
		cp, err := copyRun(rec)
		if err != nil {
			return nil, err
		}
		all[i] = cp
	}
	return all, nil
}
