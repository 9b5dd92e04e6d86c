// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// Pinger is satisfied by the lifecycle store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports unhealthy when the backend does not answer a ping.
type PingChecker struct {
	name string
	p    Pinger
}

func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, p: p}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.p.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// RunSource yields the latest daily run of an asset, or nil.
type RunSource interface {
	LastRun(ctx context.Context, asset model.Asset) (*model.RunRecord, error)
}

// LastRunChecker flags an asset whose daily run is missing, stale or
// not COMPLETED. It never reports unhealthy: a missed run should not take
// the API out of rotation.
type LastRunChecker struct {
	asset  model.Asset
	runs   RunSource
	maxAge time.Duration
	now    func() time.Time
}

// NewLastRunChecker creates a checker that expects a run newer than maxAge.
func NewLastRunChecker(asset model.Asset, runs RunSource, maxAge time.Duration, now func() time.Time) *LastRunChecker {
	if now == nil {
		now = time.Now
	}
	return &LastRunChecker{asset: asset, runs: runs, maxAge: maxAge, now: now}
}

func (c *LastRunChecker) Name() string {
	return "daily_run_" + string(c.asset)
}

func (c *LastRunChecker) Check(ctx context.Context) CheckResult {
	rec, err := c.runs.LastRun(ctx, c.asset)
	if err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	if rec == nil {
		return CheckResult{Status: StatusDegraded, Message: "no daily run yet"}
	}
	if age := c.now().Sub(rec.TS); age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last run %s ago", age.Truncate(time.Minute)),
		}
	}
	if rec.Meta.Status != model.RunCompleted {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "last run " + string(rec.Meta.Status),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "last run completed"}
}
