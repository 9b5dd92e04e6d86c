package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DailyRunsTotal counts finished daily runs.
	DailyRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_daily_runs_total",
		Help: "Total number of daily pipeline runs, by asset, mode and status.",
	}, []string{"asset", "mode", "status"})

	// DailyRunDuration observes whole-run latency.
	DailyRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fractal_daily_run_duration_seconds",
		Help:    "Daily pipeline run duration, by asset.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"asset"})

	// DailyRunStepDuration observes per-step latency.
	DailyRunStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fractal_daily_run_step_duration_seconds",
		Help:    "Daily pipeline step duration, by step and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step", "ok"})

	// DailyRunLastSuccess is the unix time of the last non-failed run.
	DailyRunLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fractal_daily_run_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last completed or degraded run, by asset.",
	}, []string{"asset"})

	// AlertsDispatchedTotal counts alert deliveries.
	AlertsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fractal_alerts_dispatched_total",
		Help: "Total number of alert deliveries, by backend and result (sent, dropped, error).",
	}, []string{"backend", "result"})
)

// RecordDailyRun records a finished run.
func RecordDailyRun(asset, mode, status string, seconds float64, finishedUnix int64) {
	DailyRunsTotal.WithLabelValues(asset, mode, status).Inc()
	DailyRunDuration.WithLabelValues(asset).Observe(seconds)
	if status == "COMPLETED" || status == "DEGRADED" {
		DailyRunLastSuccess.WithLabelValues(asset).Set(float64(finishedUnix))
	}
}

// RecordStep observes a single pipeline step.
func RecordStep(step string, ok bool, seconds float64) {
	DailyRunStepDuration.WithLabelValues(step, strconv.FormatBool(ok)).Observe(seconds)
}

// RecordAlert counts an alert delivery attempt.
func RecordAlert(backend, result string) {
	AlertsDispatchedTotal.WithLabelValues(backend, result).Inc()
}
