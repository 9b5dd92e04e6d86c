// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Policy holds the tunable lifecycle rules.
type Policy struct {
	// PromotionThreshold is the number of live samples required before a
	// WARMUP model may be promoted to APPLIED.
	PromotionThreshold int `json:"promotionThreshold" yaml:"promotionThreshold"`
	// WarmupTargetDays is recorded on warmups started by the daily run.
	WarmupTargetDays int  `json:"warmupTargetDays" yaml:"warmupTargetDays"`
	AutoWarmup       bool `json:"autoWarmup" yaml:"autoWarmup"`

	// Drift classification: the day hit rate is compared to BaselineHitRate.
	// A shortfall of at least WarnDelta is WARN, at least CriticalDelta is CRITICAL.
	BaselineHitRate float64 `json:"baselineHitRate" yaml:"baselineHitRate"`
	WarnDelta       float64 `json:"warnDelta" yaml:"warnDelta"`
	CriticalDelta   float64 `json:"criticalDelta" yaml:"criticalDelta"`
}

func DefaultPolicy() Policy {
	return Policy{
		PromotionThreshold: 30,
		WarmupTargetDays:   30,
		AutoWarmup:         true,
		BaselineHitRate:    0.55,
		WarnDelta:          0.05,
		CriticalDelta:      0.15,
	}
}
