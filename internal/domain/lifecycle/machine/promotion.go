// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/integrity"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/metrics"
)

// PromotionResult is the outcome of CheckPromotion and Promote.
type PromotionResult struct {
	Promoted    bool         `json:"promoted"`
	Blocked     bool         `json:"blocked"`
	Reason      string       `json:"reason"`
	LiveSamples int          `json:"liveSamples"`
	Threshold   int          `json:"threshold"`
	Status      model.Status `json:"status"`
	State       *model.State `json:"state,omitempty"`
}

// SamplesResult is the outcome of IncrementSamples.
type SamplesResult struct {
	LiveSamples int          `json:"liveSamples"`
	Promoted    bool         `json:"promoted"`
	Blocked     bool         `json:"blocked"`
	Reason      string       `json:"reason"`
	Status      model.Status `json:"status"`
	State       *model.State `json:"state"`
}

// evaluatePromotion applies the promotion rule. The reason names the first
// failing condition: sample count, drift, integrity.
func evaluatePromotion(st *model.State, threshold int) (bool, string) {
	if st.Status != model.StatusWarmup {
		return false, fmt.Sprintf("status is %s, not WARMUP", st.Status)
	}
	if st.LiveSamples < threshold {
		return false, fmt.Sprintf("insufficient live samples: %d/%d", st.LiveSamples, threshold)
	}
	if why := integrity.Admit(st); why != "" {
		return false, why
	}
	return true, fmt.Sprintf("live samples threshold reached: %d/%d", st.LiveSamples, threshold)
}

// promoteLocked repairs soft integrity issues on st, then promotes it when
// the rule allows. It runs inside a store update.
func promoteLocked(st *model.State, threshold int, now time.Time) (bool, string, []model.Event, error) {
	if st.Status == model.StatusWarmup {
		if res := integrity.Inspect(st, now); res.Valid && len(res.Fixes) > 0 {
			*st = *res.State
		}
	}
	ok, why := evaluatePromotion(st, threshold)
	if !ok {
		return false, why, nil, nil
	}
	ev, err := transition(st, ActAutoPromote, why, now)
	if err != nil {
		return false, "", nil, err
	}
	return true, why, []model.Event{ev}, nil
}

// CheckPromotion evaluates the promotion rule without changing anything.
// Promoted is always false.
func (m *Machine) CheckPromotion(ctx context.Context, asset model.Asset) (PromotionResult, error) {
	st, err := m.Get(ctx, asset)
	if err != nil {
		return PromotionResult{}, err
	}
	pol := m.Policy()
	if st == nil {
		st = model.NewState(asset, pol.WarmupTargetDays, m.now())
	}
	ok, why := evaluatePromotion(st, pol.PromotionThreshold)
	return PromotionResult{
		Blocked:     !ok,
		Reason:      why,
		LiveSamples: st.LiveSamples,
		Threshold:   pol.PromotionThreshold,
		Status:      st.Status,
	}, nil
}

// Promote evaluates the rule and applies the promotion when eligible.
// Outside WARMUP it reports blocked without touching the state.
func (m *Machine) Promote(ctx context.Context, asset model.Asset) (PromotionResult, error) {
	threshold := m.Policy().PromotionThreshold
	var res PromotionResult
	st, err := m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		promoted, why, evs, err := promoteLocked(st, threshold, now)
		if err != nil {
			return nil, err
		}
		res.Promoted, res.Blocked, res.Reason = promoted, !promoted, why
		return evs, nil
	})
	if err != nil {
		return PromotionResult{}, err
	}
	res.LiveSamples = st.LiveSamples
	res.Threshold = threshold
	res.Status = st.Status
	res.State = st
	if res.Blocked && st.Status == model.StatusWarmup {
		metrics.RecordPromotionBlocked(string(asset), res.Reason)
	}
	return res, nil
}

// IncrementSamples adds count live samples to a WARMUP model and then
// evaluates auto-promotion in the same update.
func (m *Machine) IncrementSamples(ctx context.Context, asset model.Asset, count int) (SamplesResult, error) {
	if count < 1 {
		return SamplesResult{}, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	threshold := m.Policy().PromotionThreshold

	var res SamplesResult
	st, err := m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		if st.Status != model.StatusWarmup {
			return nil, fmt.Errorf("%w: status is %s", ErrNotInWarmup, st.Status)
		}
		st.LiveSamples += count
		promoted, why, evs, err := promoteLocked(st, threshold, now)
		if err != nil {
			return nil, err
		}
		res.Promoted, res.Blocked, res.Reason = promoted, !promoted, why
		return evs, nil
	})
	if err != nil {
		return SamplesResult{}, err
	}
	res.LiveSamples = st.LiveSamples
	res.Status = st.Status
	res.State = st
	return res, nil
}
