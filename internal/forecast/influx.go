// SPDX-License-Identifier: MIT

package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

const (
	DefaultMeasurement      = "forecast_outcomes"
	DefaultPriceMeasurement = "prices"
)

// InfluxConfig points at the bucket the forecasting engine writes to.
type InfluxConfig struct {
	URL              string
	Token            string
	Org              string
	Bucket           string
	Measurement      string
	PriceMeasurement string
}

// Validate reports missing connection settings.
func (c InfluxConfig) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("influx url is required"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("influx token is required"))
	}
	if c.Org == "" {
		errs = append(errs, errors.New("influx org is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("influx bucket is required"))
	}
	return errors.Join(errs...)
}

// InfluxSource reads resolved outcomes and prices from InfluxDB.
//
// Outcomes are points in Measurement tagged asset and forecast_id with
// fields direction, realized and issued_at (unix ms); the point time is
// the resolution time. Prices are the close field of PriceMeasurement.
type InfluxSource struct {
	cfg    InfluxConfig
	client influxdb2.Client
	query  api.QueryAPI
	clock  clock.Clock
}

func NewInfluxSource(cfg InfluxConfig, clk clock.Clock) (*InfluxSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	if cfg.PriceMeasurement == "" {
		cfg.PriceMeasurement = DefaultPriceMeasurement
	}
	if clk == nil {
		clk = clock.Real{}
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSource{cfg: cfg, client: client, query: client.QueryAPI(cfg.Org), clock: clk}, nil
}

func (s *InfluxSource) Close() { s.client.Close() }

// outcomesQuery only interpolates validated assets, never free text.
func outcomesQuery(bucket, measurement string, asset model.Asset, since, until time.Time) string {
	return fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.asset == %q)
		  |> pivot(rowKey:["_time", "forecast_id"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, since.UTC().Format(time.RFC3339Nano), until.UTC().Format(time.RFC3339Nano), measurement, asset)
}

func priceQuery(bucket, measurement string, asset model.Asset) string {
	return fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: -7d)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.asset == %q)
		  |> filter(fn: (r) => r._field == "close")
		  |> last()
	`, bucket, measurement, asset)
}

func (s *InfluxSource) ResolveOutcomes(ctx context.Context, asset model.Asset, since time.Time) ([]model.Outcome, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAsset, asset)
	}
	now := s.clock.Now()
	if !since.Before(now) {
		return []model.Outcome{}, nil
	}
	result, err := s.query.Query(ctx, outcomesQuery(s.cfg.Bucket, s.cfg.Measurement, asset, since, now))
	if err != nil {
		return nil, fmt.Errorf("influx outcome query failed: %w", err)
	}
	defer result.Close()

	out := []model.Outcome{}
	for result.Next() {
		rec := result.Record()
		o, ok := outcomeFromValues(asset, rec.Time(), rec.Values())
		if !ok {
			continue
		}
		out = append(out, o)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("error reading influx outcomes: %w", result.Err())
	}
	return out, nil
}

func (s *InfluxSource) MarketSnapshot(ctx context.Context, asset model.Asset) (dailyrun.MarketSnapshot, error) {
	result, err := s.query.Query(ctx, priceQuery(s.cfg.Bucket, s.cfg.PriceMeasurement, asset))
	if err != nil {
		return dailyrun.MarketSnapshot{}, fmt.Errorf("influx price query failed: %w", err)
	}
	defer result.Close()

	snap := dailyrun.MarketSnapshot{Asset: asset, Source: "influx"}
	found := false
	for result.Next() {
		rec := result.Record()
		if v, ok := toFloat(rec.Value()); ok {
			snap.Price, snap.AsOf, found = v, rec.Time(), true
		}
	}
	if result.Err() != nil {
		return dailyrun.MarketSnapshot{}, fmt.Errorf("error reading influx prices: %w", result.Err())
	}
	if !found {
		return dailyrun.MarketSnapshot{}, fmt.Errorf("no recent price for %s", asset)
	}
	return snap, nil
}

// outcomeFromValues maps one pivoted row. Rows without a usable
// direction or realized return are skipped.
func outcomeFromValues(asset model.Asset, resolvedAt time.Time, values map[string]any) (model.Outcome, bool) {
	dir, ok := toFloat(values["direction"])
	if !ok || dir == 0 {
		return model.Outcome{}, false
	}
	realized, ok := toFloat(values["realized"])
	if !ok {
		return model.Outcome{}, false
	}
	o := model.Outcome{Asset: asset, ResolvedAt: resolvedAt.UTC(), Direction: 1, Realized: realized}
	if dir < 0 {
		o.Direction = -1
	}
	if id, ok := values["forecast_id"].(string); ok {
		o.ForecastID = id
	}
	if ms, ok := toFloat(values["issued_at"]); ok {
		o.IssuedAt = time.UnixMilli(int64(ms)).UTC()
	}
	return o, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
