// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/drift"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/store"
)

// Combined summarises all assets for dashboards.
type Combined struct {
	// Ready is true when every asset is APPLIED.
	Ready bool   `json:"ready"`
	Mode  string `json:"mode"`
}

type stateView struct {
	States   []*model.State `json:"states"`
	BTC      *model.State   `json:"btc"`
	SPX      *model.State   `json:"spx"`
	Combined Combined       `json:"combined"`
}

// combine folds per-asset states. A missing asset counts as SIMULATION.
// Mode is LIVE when all are applied, PARTIAL when some are, otherwise the
// most severe of HALTED, EVALUATION, SIMULATION present.
func combine(byAsset map[model.Asset]*model.State) Combined {
	applied, halted, evaluating := 0, false, false
	for _, a := range model.Assets() {
		st := byAsset[a]
		if st == nil {
			continue
		}
		switch st.Status {
		case model.StatusApplied:
			applied++
		case model.StatusRevoked:
			halted = true
		case model.StatusWarmup:
			evaluating = true
		}
	}
	switch {
	case applied == len(model.Assets()):
		return Combined{Ready: true, Mode: model.StatusApplied.SystemMode()}
	case applied > 0:
		return Combined{Mode: "PARTIAL"}
	case halted:
		return Combined{Mode: model.StatusRevoked.SystemMode()}
	case evaluating:
		return Combined{Mode: model.StatusWarmup.SystemMode()}
	}
	return Combined{Mode: model.StatusSimulation.SystemMode()}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	states, err := s.lifecycle.List(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	byAsset := make(map[model.Asset]*model.State, len(states))
	for _, st := range states {
		byAsset[st.Asset] = st
	}
	writeOK(w, stateView{
		States:   states,
		BTC:      byAsset[model.AssetBTC],
		SPX:      byAsset[model.AssetSPX],
		Combined: combine(byAsset),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r, true)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	limit, err := queryLimit(r, defaultEventLimit, maxEventLimit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	events, err := s.lifecycle.Events(r.Context(), store.EventQuery{Asset: asset, Limit: limit})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeOK(w, events)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	states, err := s.lifecycle.InitAll(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, states)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	asset, err := model.ParseAsset(chi.URLParam(r, "modelId"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	st, err := s.lifecycle.Get(r.Context(), asset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if st == nil {
		writeJSON(w, http.StatusNotFound, envelope{Error: "model " + string(asset) + " is not initialized"})
		return
	}
	writeOK(w, st)
}

// parseBody decodes the request and resolves its asset field.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request, dst any, rawAsset *string) (model.Asset, bool) {
	if err := s.decode(w, r, dst); err != nil {
		writeError(w, r, err, nil)
		return "", false
	}
	asset, err := model.ParseAsset(*rawAsset)
	if err != nil {
		writeError(w, r, err, nil)
		return "", false
	}
	return asset, true
}

func (s *Server) handleForceWarmup(w http.ResponseWriter, r *http.Request) {
	var req forceWarmupRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	days := s.lifecycle.Machine().Policy().WarmupTargetDays
	if req.TargetDays != nil {
		days = *req.TargetDays
	}
	st, err := s.lifecycle.ForceWarmup(r.Context(), asset, days, req.Reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, st)
}

func (s *Server) handleForceApply(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	res, err := s.lifecycle.ForceApply(r.Context(), asset, req.Reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if res.Blocked {
		writeRefused(w, res.Reason, res)
		return
	}
	writeOK(w, res)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	st, err := s.lifecycle.Revoke(r.Context(), asset, req.Reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, st)
}

func (s *Server) handleResetSimulation(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	st, err := s.lifecycle.ResetSimulation(r.Context(), asset, req.Reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, st)
}

func (s *Server) handleConstitution(w http.ResponseWriter, r *http.Request) {
	var req constitutionRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	res, err := s.lifecycle.ApplyConstitution(r.Context(), asset, req.Hash)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, res)
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	var req driftRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	res, err := s.lifecycle.UpdateDrift(r.Context(), asset, req.Severity, drift.Deltas{
		HitRate: req.DeltaHitRate,
		Sharpe:  req.DeltaSharpe,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, res)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	var req samplesRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	res, err := s.lifecycle.IncrementSamples(r.Context(), asset, req.Count)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, res)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	res, err := s.lifecycle.CheckIntegrity(r.Context(), asset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, res)
}

func (s *Server) handleCheckPromotion(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	asset, ok := s.parseBody(w, r, &req, &req.Asset)
	if !ok {
		return
	}
	res, err := s.lifecycle.CheckPromotion(r.Context(), asset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeOK(w, res)
}
