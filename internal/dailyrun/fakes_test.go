// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dailyrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

type fakeStorage struct {
	mu          sync.Mutex
	snapshots   []Snapshot
	progress    []*model.State
	timeline    []TimelineEntry
	snapshotErr error
}

func (f *fakeStorage) WriteSnapshot(_ context.Context, _ model.Asset, s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return f.snapshotErr
	}
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeStorage) WriteProgress(_ context.Context, _ model.Asset, st *model.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, st.Clone())
	return nil
}

func (f *fakeStorage) WriteTimeline(_ context.Context, _ model.Asset, e TimelineEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeline = append(f.timeline, e)
	return nil
}

// fakeForecaster resolves hits correct and misses wrong outcomes per call.
type fakeForecaster struct {
	hits, misses int
	// onResolve runs inside ResolveOutcomes.
	onResolve func()
	// marketDelay blocks MarketSnapshot.
	marketDelay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeForecaster) MarketSnapshot(_ context.Context, asset model.Asset) (MarketSnapshot, error) {
	if f.marketDelay > 0 {
		time.Sleep(f.marketDelay)
	}
	return MarketSnapshot{Asset: asset, Price: 100, Source: "fake"}, nil
}

func (f *fakeForecaster) ResolveOutcomes(_ context.Context, asset model.Asset, since time.Time) ([]model.Outcome, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.onResolve != nil {
		f.onResolve()
	}
	out := make([]model.Outcome, 0, f.hits+f.misses)
	for i := 0; i < f.hits+f.misses; i++ {
		realized := 0.01
		if i >= f.hits {
			realized = -0.01
		}
		out = append(out, model.Outcome{
			ForecastID: fmt.Sprintf("%s-%d-%d", asset, call, i),
			Asset:      asset,
			IssuedAt:   since,
			ResolvedAt: since,
			Direction:  1,
			Realized:   realized,
		})
	}
	return out, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (f *fakeAlerter) Dispatch(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlerter) types() []model.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.EventType, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a.Event.Type)
	}
	return out
}
