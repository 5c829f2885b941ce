// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ManuGH/turnstile/internal/log"
)

const maxRequestIDLen = 128

// RequestID adds a unique ID to every request, honouring a sane inbound one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if reqID == "" || len(reqID) > maxRequestIDLen || strings.ContainsAny(reqID, "\r\n") {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
