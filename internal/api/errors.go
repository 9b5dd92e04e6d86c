// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/fractal/internal/dailyrun"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/machine"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/manager"
	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
	"github.com/ManuGH/fractal/internal/storage"
)

// errBadRequest classifies malformed requests caught at the HTTP edge.
var errBadRequest = errors.New("bad request")

type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusFor is the single place domain errors become HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		machine.IsValidation(err),
		errors.Is(err, model.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, machine.ErrNotInWarmup),
		errors.Is(err, machine.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, manager.ErrAssetBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, dailyrun.ErrRunTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dailyrun.ErrRunCancelled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
