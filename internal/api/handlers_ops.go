// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/log"
)

const defaultAlertLimit = 50

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, false)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	res, err := s.runner.RunDailyPipeline(r.Context(), asset, model.RunManual)
	if res != nil {
		s.audit.DailyRunTrigger(r.Context(), string(asset), res.RunID, string(res.Status))
	}
	if err != nil {
		l := log.WithContext(r.Context(), s.logger)
		l.Warn().
			Err(err).
			Str(log.FieldEvent, "api.run_now_failed").
			Str(log.FieldAsset, string(asset)).
			Msg("manual daily run did not complete")
		var partial any
		if res != nil {
			partial = res
		}
		writeError(w, r, err, partial)
		return
	}
	writeOK(w, res)
}

type runStatusView struct {
	LastRun *model.RunRecord `json:"lastRun"`
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, false)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	rec, err := s.lifecycle.Store().LastRun(r.Context(), asset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, runStatusView{LastRun: rec})
}

func (s *Server) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, true)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	limit, err := queryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	runs, err := s.lifecycle.Store().ListRuns(r.Context(), asset, limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if runs == nil {
		runs = []*model.RunRecord{}
	}
	writeOK(w, runs)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, false)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	limit, err := queryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	entries, err := s.artifacts.Timeline(r.Context(), asset, limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if entries == nil {
		entries = []dailyrun.TimelineEntry{}
	}
	writeOK(w, entries)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, false)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	snap, err := s.artifacts.LatestSnapshot(r.Context(), asset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, snap)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, false)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	st, err := s.artifacts.Progress(r.Context(), asset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, st)
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeJSON(w, http.StatusNotFound, envelope{Error: "alert history not available for this backend"})
		return
	}
	limit, err := queryLimit(r, defaultAlertLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	alerts, err := s.alerts.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if alerts == nil {
		alerts = []dailyrun.Alert{}
	}
	writeOK(w, alerts)
}
