// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ManuGH/fractal/internal/log"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// envelope is the shape of every API response.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

// writeRefused answers 200 with ok=false: the request was valid but the
// lifecycle rules refused it.
func writeRefused(w http.ResponseWriter, reason string, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: false, Data: data, Error: reason})
}

// writeError maps err to a status and writes the envelope. data is kept for
// partial results such as a timed-out run.
func writeError(w http.ResponseWriter, r *http.Request, err error, data any) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		l := log.WithContext(r.Context(), log.WithComponent("api"))
		l.Error().
			Err(err).
			Str(log.FieldEvent, "api.request_failed").
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, code).
			Msg("request failed")
	}
	writeJSON(w, code, envelope{OK: false, Data: data, Error: err.Error()})
}

// decode reads a JSON body into dst and validates it. An empty body decodes
// to the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return badRequest("%s failed %s validation", fe.Field(), fe.Tag())
		}
		return badRequest("%v", err)
	}
	return nil
}
