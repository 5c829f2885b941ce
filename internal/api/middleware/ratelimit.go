// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// DefaultRequestsPerMinute applies when the configured budget is not positive.
const DefaultRequestsPerMinute = 120

// APIRateLimit gives every client IP a sliding one-minute budget of
// perMinute requests. Over-budget requests get 429 with Retry-After.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	const window = time.Minute
	retryAfter := strconv.Itoa(int(window / time.Second))

	return httprate.Limit(perMinute, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			reject(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}),
	)
}
