package model

import "time"

// Outcome is one forecast whose horizon has elapsed and whose realized
// market move is known.
type Outcome struct {
	ForecastID string    `json:"forecastId"`
	Asset      Asset     `json:"asset"`
	IssuedAt   time.Time `json:"issuedAt"`
	ResolvedAt time.Time `json:"resolvedAt"`
	// Direction is the forecast sign: +1 up, -1 down.
	Direction int     `json:"direction"`
	Realized  float64 `json:"realizedReturn"`
}

// Hit reports whether the forecast direction matched the realized move.
func (o Outcome) Hit() bool {
	return (o.Direction > 0 && o.Realized > 0) || (o.Direction < 0 && o.Realized < 0)
}
