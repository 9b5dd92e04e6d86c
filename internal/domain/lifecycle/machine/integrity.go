// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package machine

import (
	"context"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/integrity"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/metrics"
)

// IntegrityResult pairs the guard report with the persisted state.
type IntegrityResult struct {
	Report integrity.Report `json:"integrityResult"`
	State  *model.State     `json:"state"`
}

// CheckIntegrity runs the integrity guard and persists its fixes. A forced
// revoke is logged as INTEGRITY_FIX. Unfixable states are left untouched.
func (m *Machine) CheckIntegrity(ctx context.Context, asset model.Asset) (IntegrityResult, error) {
	var rep integrity.Report
	st, err := m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		res := integrity.Inspect(st, now)
		rep = res.Report
		if !res.Valid || len(res.Fixes) == 0 {
			return nil, nil
		}
		from := st.Status
		*st = *res.State
		if !res.Revoked {
			return nil, nil
		}
		tr, _ := TransitionFor(from, ActIntegrityRevoke)
		return []model.Event{{
			Type:       tr.Event,
			ModelID:    st.Asset,
			FromStatus: from,
			ToStatus:   st.Status,
			Reason:     integrity.ReasonCriticalWhileApplied,
			Timestamp:  now,
		}}, nil
	})
	if err != nil {
		return IntegrityResult{}, err
	}
	metrics.RecordIntegrityFixes(string(asset), len(rep.Fixes))
	return IntegrityResult{Report: rep, State: st}, nil
}
