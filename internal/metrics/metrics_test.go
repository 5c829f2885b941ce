// SPDX-License-Identifier: MIT

package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/turnstile/internal/metrics"
)

func family(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestRecordScan(t *testing.T) {
	metrics.RecordScan("WRONG_EVENT", "manual")
	metrics.RecordScan("WRONG_EVENT", "manual")

	mf := family(t, "turnstile_scans_total")
	var found bool
	for _, m := range mf.GetMetric() {
		if labelValue(m, "outcome") == "WRONG_EVENT" && labelValue(m, "source") == "manual" {
			found = true
			assert.GreaterOrEqual(t, m.GetCounter().GetValue(), 2.0)
		}
	}
	assert.True(t, found)
}

func TestSetCameraStateIsOneHot(t *testing.T) {
	metrics.SetCameraState("PAUSED")

	mf := family(t, "turnstile_camera_state")
	active := 0
	for _, m := range mf.GetMetric() {
		if m.GetGauge().GetValue() == 1 {
			active++
			assert.Equal(t, "PAUSED", labelValue(m, "state"))
		}
	}
	assert.Equal(t, 1, active)
}

func TestExposition(t *testing.T) {
	metrics.ObserveMutator("success", 120*time.Millisecond)
	metrics.RecordOccupancy(3, 10)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "turnstile_mutator_duration_seconds_bucket"))
	assert.True(t, strings.Contains(text, "turnstile_occupancy_total 10"))
}

func TestBreakerState(t *testing.T) {
	metrics.SetCircuitBreakerState("mutator-test", "open")
	metrics.SetCircuitBreakerState("mutator-test", "sideways")
	metrics.RecordCircuitBreakerTrip("mutator-test", "threshold_exceeded")

	var state float64 = -1
	for _, m := range family(t, "turnstile_breaker_state").GetMetric() {
		if labelValue(m, "breaker") == "mutator-test" {
			state = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2.0, state, "unknown states leave the gauge untouched")

	var trips float64
	for _, m := range family(t, "turnstile_breaker_trips_total").GetMetric() {
		if labelValue(m, "breaker") == "mutator-test" {
			trips += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, trips)
}
