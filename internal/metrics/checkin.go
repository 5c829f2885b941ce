// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_scans_total",
		Help: "Completed verification cycles by terminal outcome and input source",
	}, []string{"outcome", "source"})

	verificationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstile_verifications_in_flight",
		Help: "1 while the engine is in VERIFYING",
	})

	mutatorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "turnstile_mutator_duration_seconds",
		Help:    "Latency of authoritative check-in calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"result"}) // result=success|failure|error|timeout

	lateMutatorResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_mutator_late_results_total",
		Help: "Check-in answers that arrived after the engine timed out",
	}, []string{"result"})

	leaseConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_mutator_lease_conflicts_total",
		Help: "Check-ins refused because another door holds the ticket lease",
	})

	occupancyCheckedIn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstile_occupancy_checked_in",
		Help: "Checked-in tickets in the current event scope",
	})

	occupancyTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstile_occupancy_total",
		Help: "Tickets in the current event scope",
	})
)

// RecordScan counts a terminal outcome.
func RecordScan(outcome, source string) {
	scansTotal.WithLabelValues(outcome, source).Inc()
}

// SetVerifying flips the in-flight gauge.
func SetVerifying(active bool) {
	if active {
		verificationsInFlight.Set(1)
		return
	}
	verificationsInFlight.Set(0)
}

// ObserveMutator records the latency of one mutator call.
func ObserveMutator(result string, d time.Duration) {
	mutatorDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncLateMutatorResult counts a mutator answer received after timeout.
func IncLateMutatorResult(result string) { lateMutatorResults.WithLabelValues(result).Inc() }

// IncLeaseConflict counts a refused lease.
func IncLeaseConflict() { leaseConflicts.Inc() }

// RecordOccupancy publishes the checked-in / total statistic.
func RecordOccupancy(checkedIn, total int) {
	occupancyCheckedIn.Set(float64(checkedIn))
	occupancyTotal.Set(float64(total))
}
