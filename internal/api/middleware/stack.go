// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress stack shared by the door API
// and the metrics listener.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/turnstile/internal/log"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

// StackConfig switches optional layers. The zero value still recovers
// panics and assigns request ids.
type StackConfig struct {
	EnableSecurityHeaders bool
	// CSP overrides DefaultCSP when security headers are on.
	CSP string

	EnableMetrics bool
	// TracingService names the otelhttp handler; empty disables tracing.
	TracingService string
	EnableLogging  bool

	EnableRateLimit   bool
	RequestsPerMinute int
}

// Layers returns the middleware in application order, outermost first.
// Recovery wraps everything and the rate limiter sits closest to the
// handlers so rejected requests are still logged and measured.
func (c StackConfig) Layers() []func(http.Handler) http.Handler {
	layers := []func(http.Handler) http.Handler{Recoverer, RequestID}
	if c.EnableSecurityHeaders {
		layers = append(layers, SecurityHeaders(c.CSP))
	}
	if c.EnableMetrics {
		layers = append(layers, Metrics())
	}
	if c.TracingService != "" {
		layers = append(layers, OTelHTTP(c.TracingService))
	}
	if c.EnableLogging {
		layers = append(layers, xglog.Middleware())
	}
	if c.EnableRateLimit {
		layers = append(layers, APIRateLimit(c.RequestsPerMinute))
	}
	return layers
}

// NewRouter returns a chi router with the configured layers installed.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cfg.Layers()...)
	return r
}
