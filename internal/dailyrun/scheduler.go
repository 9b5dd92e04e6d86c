// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dailyrun

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/fractal/internal/clock"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/log"
)

// Runner is what the scheduler triggers.
type Runner interface {
	RunDailyPipeline(ctx context.Context, asset model.Asset, mode model.RunMode) (*model.RunResult, error)
}

// TimeOfDay is a wall-clock time in UTC.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Next returns the first occurrence of t strictly after now.
func (t TimeOfDay) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler fires a SCHEDULED run for every asset once a day.
type Scheduler struct {
	runner Runner
	at     TimeOfDay
	assets []model.Asset
	clock  clock.Clock
	logger zerolog.Logger
}

func NewScheduler(runner Runner, at TimeOfDay, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		runner: runner,
		at:     at,
		assets: model.Assets(),
		clock:  clk,
		logger: log.WithComponent("dailyrun.scheduler"),
	}
}

// Run blocks until ctx is cancelled. A run in progress when ctx is
// cancelled observes the cancellation between steps.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Str(log.FieldEvent, "dailyrun.scheduler_started").
		Str("at", s.at.String()).
		Msg("daily run scheduler started")

	for {
		next := s.at.Next(s.clock.Now())
		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		s.logger.Debug().
			Str(log.FieldEvent, "dailyrun.scheduled").
			Time("next_run", next).
			Msg("next daily run scheduled")

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().
				Str(log.FieldEvent, "dailyrun.scheduler_stopped").
				Msg("daily run scheduler stopping")
			return nil
		case <-timer.C():
			s.RunAll(ctx)
		}
	}
}

// RunAll runs every asset in parallel and waits for all of them. Errors
// are logged; one asset never stops another.
func (s *Scheduler) RunAll(ctx context.Context) {
	var g errgroup.Group
	for _, a := range s.assets {
		g.Go(func() error {
			res, err := s.runner.RunDailyPipeline(ctx, a, model.RunScheduled)
			if err != nil {
				s.logger.Error().
					Str(log.FieldEvent, "dailyrun.scheduled_failed").
					Str(log.FieldAsset, string(a)).
					Err(err).
					Msg("scheduled daily run failed")
				return nil
			}
			s.logger.Info().
				Str(log.FieldEvent, "dailyrun.scheduled_done").
				Str(log.FieldAsset, string(a)).
				Str(log.FieldRunID, res.RunID).
				Str(log.FieldStatus, string(res.Status)).
				Msg("scheduled daily run done")
			return nil
		})
	}
	_ = g.Wait()
}
