// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

var (
	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fractal_lifecycle_store_ops_total",
			Help: "Total lifecycle store operations",
		},
		[]string{"backend", "op", "result"}, // result=success/error
	)
	storeLat = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fractal_lifecycle_store_op_seconds",
			Help:    "Lifecycle store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

// instrumentedStore wraps any Store to capture metrics.
type instrumentedStore struct {
	inner   Store
	backend string
}

func NewInstrumentedStore(inner Store, backend string) Store {
	return &instrumentedStore{inner: inner, backend: backend}
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	res := "success"
	if err != nil {
		res = "error"
	}
	storeOps.WithLabelValues(i.backend, op, res).Inc()
	storeLat.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumentedStore) Get(ctx context.Context, asset model.Asset) (st *model.State, err error) {
	start := time.Now()
	defer func() { i.observe("get", start, err) }()
	return i.inner.Get(ctx, asset)
}

func (i *instrumentedStore) List(ctx context.Context) (list []*model.State, err error) {
	start := time.Now()
	defer func() { i.observe("list", start, err) }()
	return i.inner.List(ctx)
}

func (i *instrumentedStore) Update(ctx context.Context, asset model.Asset, fn UpdateFunc) (st *model.State, evs []model.Event, err error) {
	start := time.Now()
	defer func() { i.observe("update", start, err) }()
	return i.inner.Update(ctx, asset, fn)
}

func (i *instrumentedStore) Events(ctx context.Context, q EventQuery) (evs []model.Event, err error) {
	start := time.Now()
	defer func() { i.observe("events", start, err) }()
	return i.inner.Events(ctx, q)
}

func (i *instrumentedStore) LastEventSeq(ctx context.Context) (seq int64, err error) {
	start := time.Now()
	defer func() { i.observe("last_event_seq", start, err) }()
	return i.inner.LastEventSeq(ctx)
}

func (i *instrumentedStore) SaveRun(ctx context.Context, rec *model.RunRecord) (err error) {
	start := time.Now()
	defer func() { i.observe("save_run", start, err) }()
	return i.inner.SaveRun(ctx, rec)
}

func (i *instrumentedStore) LastRun(ctx context.Context, asset model.Asset) (rec *model.RunRecord, err error) {
	start := time.Now()
	defer func() { i.observe("last_run", start, err) }()
	return i.inner.LastRun(ctx, asset)
}

func (i *instrumentedStore) ListRuns(ctx context.Context, asset model.Asset, limit int) (list []*model.RunRecord, err error) {
	start := time.Now()
	defer func() { i.observe("list_runs", start, err) }()
	return i.inner.ListRuns(ctx, asset, limit)
}

func (i *instrumentedStore) Ping(ctx context.Context) error {
	return i.inner.Ping(ctx)
}

func (i *instrumentedStore) Close() error {
	return i.inner.Close()
}
