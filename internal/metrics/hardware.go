// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cameraState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turnstile_camera_state",
		Help: "Camera session lifecycle state (active state=1, others 0)",
	}, []string{"state"})

	cameraFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_camera_failures_total",
		Help: "Camera hardware failures by kind",
	}, []string{"kind"})

	cameraPayloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_camera_payloads_total",
		Help: "Decoded camera payloads by disposition",
	}, []string{"disposition"}) // delivered|dropped_paused

	audioFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_audio_failures_total",
		Help: "Audio cues that could not be played",
	}, []string{"kind"})
)

var cameraStates = []string{"UNINITIALIZED", "STARTING", "RUNNING", "PAUSED", "STOPPED", "ERROR"}

// SetCameraState marks state as the active camera lifecycle state.
func SetCameraState(state string) {
	for _, s := range cameraStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		cameraState.WithLabelValues(s).Set(value)
	}
}

// IncCameraFailure counts a hardware failure.
func IncCameraFailure(kind string) { cameraFailures.WithLabelValues(kind).Inc() }

// IncCameraPayload counts a decoded payload.
func IncCameraPayload(disposition string) { cameraPayloads.WithLabelValues(disposition).Inc() }

// IncAudioFailure counts a swallowed synthesis or playback failure.
func IncAudioFailure(kind string) { audioFailures.WithLabelValues(kind).Inc() }

var childSignals = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "turnstile_child_signals_total",
	Help: "Signals sent to helper process groups (capture, audio)",
}, []string{"signal", "result"})

// IncChildSignal counts a signal delivered to a helper process group.
func IncChildSignal(signal, result string) { childSignals.WithLabelValues(signal, result).Inc() }
