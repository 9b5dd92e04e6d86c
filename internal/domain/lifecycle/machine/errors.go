// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package machine

import (
	"errors"

	"github.com/ManuGH/fractal/internal/domain/lifecycle/model"
)

// Validation errors. Every operation rejects bad input before any mutation.
var (
	ErrInvalidAsset      = model.ErrInvalidAsset
	ErrInvalidSeverity   = model.ErrInvalidSeverity
	ErrInvalidCount      = errors.New("count must be >= 1")
	ErrInvalidTargetDays = errors.New("targetDays must be >= 0")
	ErrInvalidHash       = errors.New("constitution hash must not be empty")
	ErrNotInWarmup       = errors.New("model is not in WARMUP")
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
)

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAsset) ||
		errors.Is(err, ErrInvalidSeverity) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrInvalidTargetDays) ||
		errors.Is(err, ErrInvalidHash)
}
