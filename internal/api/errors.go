// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/turnstile/internal/log"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Code      string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Error codes.
const (
	CodeBadRequest   = "bad_request"
	CodeEmptyInput   = "empty_input"
	CodeBusy         = "verification_in_flight"
	CodeUnknownMode  = "unknown_mode"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal_error"
	CodeUnauthorized = "unauthorized"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes the standard error body and logs 5xx responses.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Str(log.FieldEvent, "api.error").
			Str(log.FieldPath, r.URL.Path).
			Int("status", status).
			Str("code", code).
			Msg(detail)
	}
	writeJSON(w, status, APIError{
		Code:      code,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
