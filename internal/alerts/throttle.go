// SPDX-License-Identifier: MIT

package alerts

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/metrics"
)

// Throttled rate-limits informational alerts. Critical alerts are never
// dropped.
type Throttled struct {
	next    dailyrun.Alerter
	limiter *rate.Limiter
}

func NewThrottled(next dailyrun.Alerter, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Dispatch(ctx context.Context, a dailyrun.Alert) error {
	if a.Severity != "critical" && !t.limiter.Allow() {
		metrics.RecordAlert("throttle", "dropped")
		return ErrThrottled
	}
	return t.next.Dispatch(ctx, a)
}

// Unwrap returns the throttled alerter.
func (t *Throttled) Unwrap() dailyrun.Alerter { return t.next }
