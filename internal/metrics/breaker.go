// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turnstile_breaker_state",
		Help: "Breaker position per guarded backend: 0 closed, 1 half-open, 2 open",
	}, []string{"breaker"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_breaker_trips_total",
		Help: "Times a breaker opened, by cause",
	}, []string{"breaker", "reason"})
)

var breakerLevels = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// SetCircuitBreakerState publishes the breaker position. Unknown states
// are ignored.
func SetCircuitBreakerState(name, state string) {
	if v, ok := breakerLevels[state]; ok {
		breakerState.WithLabelValues(name).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(name, reason string) {
	breakerTrips.WithLabelValues(name, reason).Inc()
}
