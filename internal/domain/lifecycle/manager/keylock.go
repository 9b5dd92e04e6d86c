// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// ErrAssetBusy is returned when the asset lock could not be taken before
// the caller's context expired.
var ErrAssetBusy = errors.New("asset is busy")

// keylock hands out one weight-1 semaphore per asset. Waiters queue in
// FIFO order.
type keylock struct {
	mu   sync.Mutex
	sems map[model.Asset]*semaphore.Weighted
}

func newKeylock() *keylock {
	return &keylock{sems: make(map[model.Asset]*semaphore.Weighted)}
}

func (k *keylock) sem(asset model.Asset) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.sems[asset]
	if !ok {
		s = semaphore.NewWeighted(1)
		k.sems[asset] = s
	}
	return s
}

func (k *keylock) acquire(ctx context.Context, asset model.Asset) (func(), error) {
	s := k.sem(asset)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAssetBusy, asset, err)
	}
	var once sync.Once
	return func() { once.Do(func() { s.Release(1) }) }, nil
}
