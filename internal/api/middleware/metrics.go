// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstile_http_requests_in_flight",
		Help: "HTTP requests currently being served.",
	})

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "turnstile_http_request_duration_seconds",
		Help: "HTTP request latency by route pattern.",
		// Scan submissions block until the ticket resolves, so the tail
		// reaches the verification timeout.
		Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 15},
	}, []string{"method", "route", "code"})

	responseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "turnstile_http_response_size_bytes",
		Help:    "HTTP response body size by route pattern.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 6),
	}, []string{"method", "route", "code"})
)

// routePattern keeps label cardinality bounded to the registered routes.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Metrics observes latency and response size per route.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestsInFlight.Inc()
			defer requestsInFlight.Dec()

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			labels := prometheus.Labels{
				"method": r.Method,
				"route":  routePattern(r),
				"code":   strconv.Itoa(status),
			}
			requestSeconds.With(labels).Observe(time.Since(start).Seconds())
			if n := ww.BytesWritten(); n > 0 {
				responseBytes.With(labels).Observe(float64(n))
			}
		})
	}
}
