// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/turnstile/internal/log"
)

// rejection mirrors the API's error body so clients parse one shape
// whether a handler or the ingress stack refused the request.
type rejection struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
}

func reject(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejection{
		Error:     code,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
		TraceID:   TraceID(r),
	})
}
