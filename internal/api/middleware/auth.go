// SPDX-License-Identifier: MIT

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ManuGH/turnstile/internal/log"
)

// ExtractToken reads "Authorization: Bearer <token>".
func ExtractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthorizeToken compares in constant time. An empty expected token never
// authorizes.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// RequireToken guards a route group. An empty token disables the check.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizeToken(ExtractToken(r), token) {
				next.ServeHTTP(w, r)
				return
			}
			logger := log.WithComponentFromContext(r.Context(), "auth")
			logger.Warn().Str(log.FieldEvent, "auth.rejected").Str(log.FieldPath, r.URL.Path).Msg("missing or invalid api token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="turnstile"`)
			reject(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
		})
	}
}
