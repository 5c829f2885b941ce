// SPDX-License-Identifier: MIT

package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/log"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult { return CheckResult{Status: m.status} }

type fakeDir struct {
	loaded bool
	n      int
}

func (d fakeDir) Loaded() bool { return d.loaded }
func (d fakeDir) Len() int     { return d.n }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type camState camera.State

func (c camState) CameraState() camera.State { return camera.State(c) }

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "camera", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready, "degraded components keep the door ready")
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "store", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(NewDirectoryChecker(fakeDir{}))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Ready)
	assert.Equal(t, StatusUnhealthy, body.Checks["directory"].Status)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "liveness is always 200")
}

func TestServeReadyLogsOutcome(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	m := NewManager("v1.0.0")
	m.RegisterChecker(NewDirectoryChecker(fakeDir{loaded: true, n: 3}))
	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "readiness.checked", line[log.FieldEvent])
	assert.Equal(t, "health", line[log.FieldComponent])
	assert.Equal(t, true, line["ready"])
}

func TestDirectoryChecker(t *testing.T) {
	tests := []struct {
		dir  fakeDir
		want Status
	}{
		{fakeDir{}, StatusUnhealthy},
		{fakeDir{loaded: true}, StatusDegraded},
		{fakeDir{loaded: true, n: 12}, StatusHealthy},
	}
	for _, tt := range tests {
		got := NewDirectoryChecker(tt.dir).Check(context.Background())
		assert.Equal(t, tt.want, got.Status, "%+v", tt.dir)
	}
}

func TestPingChecker(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	up := pingFunc(func(context.Context) error { return nil })

	assert.Equal(t, StatusUnhealthy, NewPingChecker("store", down, true).Check(context.Background()).Status)
	assert.Equal(t, StatusDegraded, NewPingChecker("redis", down, false).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewPingChecker("redis", up, false).Check(context.Background()).Status)
}

func TestCameraChecker(t *testing.T) {
	assert.Equal(t, StatusDegraded, NewCameraChecker(camState(camera.StateError)).Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewCameraChecker(camState(camera.StatePaused)).Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Camera.Driver = "none"
	cfg.Store.Path = filepath.Join(dir, "door.db")
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Store.Path = filepath.Join(dir, "missing", "door.db")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Store.Path = filepath.Join(dir, "door.db")
	cfg.Directory.Source = "file"
	cfg.Directory.File = filepath.Join(dir, "tickets.yaml")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
	require.NoError(t, os.WriteFile(cfg.Directory.File, []byte("tickets: []\n"), 0o600))
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }

func (slowChecker) Check(ctx context.Context) CheckResult {
	<-ctx.Done()
	return CheckResult{Status: StatusDegraded, Error: ctx.Err().Error()}
}

func TestChecksAreBounded(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(slowChecker{})
	m.RegisterChecker(&mockChecker{name: "store", status: StatusHealthy})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp := m.Ready(ctx)
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusHealthy, resp.Checks["store"].Status)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, StatusDegraded, worst(StatusHealthy, StatusDegraded))
	assert.Equal(t, StatusUnhealthy, worst(StatusUnhealthy, StatusDegraded))
	assert.Equal(t, StatusHealthy, worst(StatusHealthy, StatusHealthy))
}

func TestPerformStartupChecksReportsAllFatalProblems(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Camera.Driver = "none"
	cfg.Mutator.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(dir, "missing", "door.db")
	cfg.Directory.Source = "file"
	cfg.Directory.File = filepath.Join(dir, "tickets.yaml")

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store:")
	assert.Contains(t, err.Error(), "directory:")
}
