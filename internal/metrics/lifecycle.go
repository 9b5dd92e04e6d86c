// Package metrics provides Prometheus metrics for the fractal lifecycle service.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// No per-run or per-request identifiers in labels.

var (
	// LifecycleTransitionsTotal counts accepted lifecycle transitions.
	LifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_lifecycle_transitions_total",
		Help: "Total number of accepted lifecycle transitions, by asset, from, to and event.",
	}, []string{"asset", "from", "to", "event"})

	// PromotionBlockedTotal counts promotions and force-applies that were refused.
	PromotionBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_lifecycle_promotion_blocked_total",
		Help: "Total number of blocked promotions, by asset and reason class.",
	}, []string{"asset", "reason"})

	// DriftUpdatesTotal counts drift severity observations.
	DriftUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_drift_updates_total",
		Help: "Total number of drift severity updates, by asset and severity.",
	}, []string{"asset", "severity"})

	// DriftSeverity is 1 for the current severity of an asset and 0 otherwise.
	DriftSeverity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fractal_drift_severity",
		Help: "Current drift severity per asset (1 = active).",
	}, []string{"asset", "severity"})

	// DriftDelta tracks the last reported delta metrics.
	DriftDelta = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fractal_drift_delta",
		Help: "Last reported drift delta, by asset and metric (hit_rate, sharpe).",
	}, []string{"asset", "metric"})

	// LiveSamples tracks the live sample counter per asset.
	LiveSamples = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fractal_lifecycle_live_samples",
		Help: "Current live sample count per asset.",
	}, []string{"asset"})

	// IntegrityFixesTotal counts soft repairs applied by the integrity guard.
	IntegrityFixesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_integrity_fixes_total",
		Help: "Total number of integrity fixes applied, by asset.",
	}, []string{"asset"})
)

var severities = []string{"OK", "WARN", "CRITICAL"}

// RecordTransition increments the transition counter.
func RecordTransition(asset, from, to, event string) {
	if from == "" {
		from = "NONE"
	}
	LifecycleTransitionsTotal.WithLabelValues(asset, from, to, event).Inc()
}

// RecordPromotionBlocked increments the blocked counter with a bounded reason class.
func RecordPromotionBlocked(asset, reason string) {
	PromotionBlockedTotal.WithLabelValues(asset, BlockReasonClass(reason)).Inc()
}

// BlockReasonClass maps a free-text block reason to a bounded label value.
func BlockReasonClass(reason string) string {
	switch {
	case strings.HasPrefix(reason, "insufficient live samples"):
		return "samples"
	case strings.Contains(reason, "CRITICAL"):
		return "drift"
	case strings.HasPrefix(reason, "integrity"):
		return "integrity"
	case strings.HasPrefix(reason, "status is"):
		return "status"
	default:
		return "other"
	}
}

// SetDriftSeverity records a severity update and flips the one-hot gauge.
func SetDriftSeverity(asset, severity string) {
	DriftUpdatesTotal.WithLabelValues(asset, severity).Inc()
	for _, s := range severities {
		v := 0.0
		if s == severity {
			v = 1
		}
		DriftSeverity.WithLabelValues(asset, s).Set(v)
	}
}

// SetDriftDeltas records the optional delta metrics.
func SetDriftDeltas(asset string, hitRate, sharpe *float64) {
	if hitRate != nil {
		DriftDelta.WithLabelValues(asset, "hit_rate").Set(*hitRate)
	}
	if sharpe != nil {
		DriftDelta.WithLabelValues(asset, "sharpe").Set(*sharpe)
	}
}

// SetLiveSamples sets the live sample gauge.
func SetLiveSamples(asset string, n int) {
	LiveSamples.WithLabelValues(asset).Set(float64(n))
}

// RecordIntegrityFixes adds n applied fixes.
func RecordIntegrityFixes(asset string, n int) {
	if n > 0 {
		IntegrityFixesTotal.WithLabelValues(asset).Add(float64(n))
	}
}

// GaugeValue returns the current value of a gauge (for testing).
func GaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
