// SPDX-License-Identifier: MIT

// Package validate accumulates field-level configuration errors so that a
// single Validate call reports every problem at once.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error represents a validation error
type Error struct {
	Field   string // Field name that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
}

// Error implements the error interface
func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors and can produce a ValidationError when invalid.
type Validator struct {
	errors []Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []Error
}

func New() *Validator {
	return &Validator{}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

func (v *Validator) Errors() []Error {
	return slices.Clone(v.errors)
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []Error {
	return e.errors
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// URL validates an absolute URL with one of the allowed schemes.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, u.Scheme) {
		v.AddError(field,
			fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes),
			value)
	}
}

// ListenAddr validates a host:port listen address. The host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 0 and 65535, got %q", port), addr)
	}
}

// Range validates that an integer is within a specified range (inclusive)
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value),
			value)
	}
}

// FloatRange validates that a float is within [minVal, maxVal].
func (v *Validator) FloatRange(field string, value, minVal, maxVal float64) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("value must be between %g and %g, got %g", minVal, maxVal, value),
			value)
	}
}

// PositiveDuration validates d > 0.
func (v *Validator) PositiveDuration(field string, d time.Duration) {
	if d <= 0 {
		v.AddError(field, fmt.Sprintf("duration must be positive, got %s", d), d)
	}
}

// Directory validates a directory path
// If mustExist is false, the directory will be created if it doesn't exist
func (v *Validator) Directory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	if strings.Contains(path, "..") {
		v.AddError(field, "path contains traversal sequences (..)", path)
		return
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid path: %v", err), path)
		return
	}

	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err) && mustExist:
		v.AddError(field, "directory does not exist", path)
	case os.IsNotExist(err):
		if err := os.MkdirAll(absPath, 0o750); err != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", err), path)
		}
	case err != nil:
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
	case !info.IsDir():
		v.AddError(field, "path is not a directory", path)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field,
			fmt.Sprintf("value must be one of %v, got %q", allowed, value),
			value)
	}
}

// Positive validates that a number is positive (> 0)
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// NonNegative validates that a number is non-negative (>= 0)
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// Custom records fn's error against field.
func (v *Validator) Custom(field string, value any, fn func(any) error) {
	if err := fn(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}
