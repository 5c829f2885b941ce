// SPDX-License-Identifier: MIT

package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/ManuGH/turnstile/internal/log"
)

// Recoverer converts a handler panic into a 500 and one error log line
// with the stack. http.ErrAbortHandler is re-raised for net/http.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			logger := log.WithComponentFromContext(r.Context(), "http")
			logger.Error().
				Str(log.FieldEvent, "panic.recovered").
				Str("method", r.Method).
				Str(log.FieldPath, strings.ToValidUTF8(r.URL.Path, "")).
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			reject(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}
