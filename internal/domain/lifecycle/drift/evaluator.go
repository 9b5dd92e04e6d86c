package drift

import (
	"math"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// Stats summarises one day of resolved outcomes.
type Stats struct {
	Count      int     `json:"count"`
	Hits       int     `json:"hits"`
	HitRate    float64 `json:"hitRate"`
	MeanReturn float64 `json:"meanReturn"`
	// Sharpe is mean/stddev of the direction-signed returns, 0 below two samples.
	Sharpe float64 `json:"sharpe"`
}

// Aggregate folds outcomes into Stats.
func Aggregate(outcomes []model.Outcome) Stats {
	s := Stats{Count: len(outcomes)}
	if s.Count == 0 {
		return s
	}
	signed := make([]float64, 0, len(outcomes))
	sum := 0.0
	for _, o := range outcomes {
		if o.Hit() {
			s.Hits++
		}
		r := o.Realized
		if o.Direction < 0 {
			r = -r
		}
		signed = append(signed, r)
		sum += r
	}
	s.HitRate = float64(s.Hits) / float64(s.Count)
	s.MeanReturn = sum / float64(s.Count)

	if s.Count >= 2 {
		var sq float64
		for _, r := range signed {
			sq += (r - s.MeanReturn) * (r - s.MeanReturn)
		}
		if sd := math.Sqrt(sq / float64(s.Count-1)); sd > 0 {
			s.Sharpe = s.MeanReturn / sd
		}
	}
	return s
}

// Evaluator classifies Stats against a baseline hit rate.
type Evaluator struct {
	BaselineHitRate float64
	WarnDelta       float64
	CriticalDelta   float64
}

func EvaluatorFromPolicy(p model.Policy) Evaluator {
	return Evaluator{
		BaselineHitRate: p.BaselineHitRate,
		WarnDelta:       p.WarnDelta,
		CriticalDelta:   p.CriticalDelta,
	}
}

// Classify returns the severity and the deltas that led to it. A shortfall
// of at least CriticalDelta below baseline is CRITICAL, at least WarnDelta
// is WARN. An empty batch is OK.
func (e Evaluator) Classify(s Stats) (model.Severity, Deltas) {
	if s.Count == 0 {
		return model.SeverityOK, Deltas{}
	}
	dHit := s.HitRate - e.BaselineHitRate
	dSharpe := s.Sharpe
	d := Deltas{HitRate: &dHit, Sharpe: &dSharpe}

	// compare with a small epsilon so exact threshold hits classify as expected
	const eps = 1e-9
	switch {
	case -dHit+eps >= e.CriticalDelta:
		return model.SeverityCritical, d
	case -dHit+eps >= e.WarnDelta:
		return model.SeverityWarn, d
	}
	return model.SeverityOK, d
}
