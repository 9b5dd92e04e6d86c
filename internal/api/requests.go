// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// Domain rules (asset set, counts, severities, hashes) are enforced by the
// state machine so their error messages stay canonical. Tags here only
// bound sizes.

type actionRequest struct {
	Asset  string `json:"asset"`
	Reason string `json:"reason" validate:"max=512"`
}

type forceWarmupRequest struct {
	Asset      string `json:"asset"`
	TargetDays *int   `json:"targetDays" validate:"omitempty,lte=3650"`
	Reason     string `json:"reason" validate:"max=512"`
}

type constitutionRequest struct {
	Asset string `json:"asset"`
	Hash  string `json:"hash" validate:"max=128"`
}

type driftRequest struct {
	Asset        string   `json:"asset"`
	Severity     string   `json:"severity" validate:"max=16"`
	DeltaHitRate *float64 `json:"deltaHitRate" validate:"omitempty,gte=-1,lte=1"`
	DeltaSharpe  *float64 `json:"deltaSharpe"`
}

type samplesRequest struct {
	Asset string `json:"asset"`
	Count int    `json:"count" validate:"lte=100000"`
}

type assetRequest struct {
	Asset string `json:"asset"`
}

const (
	defaultEventLimit   = 100
	maxEventLimit       = 1000
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// queryAsset parses ?asset=. Absent is allowed only when optional.
func queryAsset(r *http.Request, optional bool) (model.Asset, error) {
	raw := r.URL.Query().Get("asset")
	if raw == "" && optional {
		return "", nil
	}
	return model.ParseAsset(raw)
}

// queryLimit parses ?limit= within [1, maxVal].
func queryLimit(r *http.Request, def, maxVal int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxVal {
		return 0, badRequest("limit must be between 1 and %d", maxVal)
	}
	return n, nil
}
