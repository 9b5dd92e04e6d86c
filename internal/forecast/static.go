// SPDX-License-Identifier: MIT

package forecast

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// StaticConfig shapes the deterministic outcome stream.
type StaticConfig struct {
	// PerDay is how many forecasts resolve per elapsed day.
	PerDay int
	// HitRate is the fraction of those that are correct.
	HitRate float64
	// Prices are the reported market prices per asset.
	Prices map[model.Asset]float64
}

func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		PerDay:  6,
		HitRate: 0.6,
		Prices:  map[model.Asset]float64{model.AssetBTC: 65000, model.AssetSPX: 5200},
	}
}

// StaticSource produces a deterministic stream of outcomes: PerDay
// forecasts resolve at every UTC midnight in (since, now], HitRate of them
// correct. The same window always yields the same outcomes.
type StaticSource struct {
	cfg   StaticConfig
	clock clock.Clock
}

func NewStaticSource(cfg StaticConfig, clk clock.Clock) *StaticSource {
	def := DefaultStaticConfig()
	if cfg.PerDay <= 0 {
		cfg.PerDay = def.PerDay
	}
	if cfg.HitRate <= 0 || cfg.HitRate > 1 {
		cfg.HitRate = def.HitRate
	}
	if cfg.Prices == nil {
		cfg.Prices = def.Prices
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &StaticSource{cfg: cfg, clock: clk}
}

func (s *StaticSource) ResolveOutcomes(ctx context.Context, asset model.Asset, since time.Time) ([]model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	day := since.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	hits := int(math.Round(s.cfg.HitRate * float64(s.cfg.PerDay)))
	var out []model.Outcome
	for ; !day.After(now); day = day.Add(24 * time.Hour) {
		seed := seedFor(asset, day)
		for i := 0; i < s.cfg.PerDay; i++ {
			dir := 1
			if (seed+uint32(i))%2 == 1 {
				dir = -1
			}
			move := 0.002 + float64((seed>>uint(i%16))%50)/10000
			realized := float64(dir) * move
			if i >= hits {
				realized = -realized
			}
			out = append(out, model.Outcome{
				ForecastID: fmt.Sprintf("%s-%s-%02d", asset, day.Format("20060102"), i),
				Asset:      asset,
				IssuedAt:   day.Add(-24 * time.Hour),
				ResolvedAt: day,
				Direction:  dir,
				Realized:   realized,
			})
		}
	}
	return out, nil
}

func (s *StaticSource) MarketSnapshot(ctx context.Context, asset model.Asset) (dailyrun.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return dailyrun.MarketSnapshot{}, err
	}
	price, ok := s.cfg.Prices[asset]
	if !ok {
		return dailyrun.MarketSnapshot{}, fmt.Errorf("no static price for %s", asset)
	}
	return dailyrun.MarketSnapshot{Asset: asset, Price: price, AsOf: s.clock.Now(), Source: "static"}, nil
}

func (s *StaticSource) Close() {}

func seedFor(asset model.Asset, day time.Time) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(asset) + day.Format("20060102")))
	return h.Sum32()
}
