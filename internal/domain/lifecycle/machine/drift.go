// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// DriftResult is the outcome of UpdateDrift.
type DriftResult struct {
	Updated   bool           `json:"updated"`
	Revoked   bool           `json:"revoked"`
	Recovered bool           `json:"recovered"`
	Status    model.Status   `json:"status"`
	Previous  model.Severity `json:"previousSeverity"`
	Reason    string         `json:"reason,omitempty"`
	State     *model.State   `json:"state"`
}

// UpdateDrift stores the new severity, then:
//  1. CRITICAL while APPLIED revokes in the same update (AUTO_REVOKED).
//  2. OK while REVOKED recovers into WARMUP (AUTO_RECOVERED).
//  3. Anything else only changes the severity.
func (m *Machine) UpdateDrift(ctx context.Context, asset model.Asset, sev model.Severity) (DriftResult, error) {
	if !sev.Valid() {
		return DriftResult{}, fmt.Errorf("%w: %q", ErrInvalidSeverity, sev)
	}

	var res DriftResult
	st, err := m.mutate(ctx, asset, func(st *model.State, now time.Time) ([]model.Event, error) {
		res.Previous = st.DriftSeverity
		st.DriftSeverity = sev
		res.Updated = true

		switch {
		case sev == model.SeverityCritical && st.Status == model.StatusApplied:
			ev, err := transition(st, ActAutoRevoke, "", now)
			if err != nil {
				return nil, err
			}
			res.Revoked, res.Reason = true, ev.Reason
			return []model.Event{ev}, nil
		case sev == model.SeverityOK && st.Status == model.StatusRevoked:
			ev, err := transition(st, ActAutoRecover, "", now)
			if err != nil {
				return nil, err
			}
			res.Recovered, res.Reason = true, ev.Reason
			return []model.Event{ev}, nil
		}
		return nil, nil
	})
	if err != nil {
		return DriftResult{}, err
	}
	res.State = st
	res.Status = st.Status
	return res, nil
}
