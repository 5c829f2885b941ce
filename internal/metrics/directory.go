// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	directoryTickets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turnstile_directory_tickets",
		Help: "Tickets in the loaded directory snapshot",
	})

	directoryRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_directory_rejected_records_total",
		Help: "Snapshot records rejected at load time by reason",
	}, []string{"reason"})

	directoryReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_directory_reloads_total",
		Help: "Directory snapshot reloads by result",
	}, []string{"result"}) // success|failure
)

// RecordDirectorySize publishes the snapshot size.
func RecordDirectorySize(n int) { directoryTickets.Set(float64(n)) }

// IncDirectoryRejected counts a rejected snapshot record.
func IncDirectoryRejected(reason string) { directoryRejected.WithLabelValues(reason).Inc() }

// IncDirectoryReload counts a reload attempt.
func IncDirectoryReload(result string) { directoryReloads.WithLabelValues(result).Inc() }
