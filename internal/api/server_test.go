// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/turnstile/internal/api/middleware"
	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/health"
	"github.com/ManuGH/turnstile/internal/scanner"
	"github.com/ManuGH/turnstile/internal/verify"
)

type fakeDoor struct {
	mu        sync.Mutex
	view      scanner.View
	settings  scanner.Settings
	submitted []string
	submitErr error
	resetErr  error
	modeErr   error
	mode      scanner.Mode
}

func newFakeDoor() *fakeDoor {
	return &fakeDoor{
		view:     scanner.View{Mode: scanner.ModeCamera, State: verify.StateIdle, History: []ticket.Attempt{}},
		settings: scanner.DefaultSettings(),
		mode:     scanner.ModeCamera,
	}
}

func (d *fakeDoor) View() scanner.View {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.view
	v.Mode = d.mode
	v.Settings = d.settings
	return v
}

func (d *fakeDoor) Submit(_ context.Context, text string) (ticket.Attempt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitErr != nil {
		return ticket.Attempt{}, d.submitErr
	}
	d.submitted = append(d.submitted, text)
	return ticket.Attempt{
		ID:         "a-1",
		Raw:        text,
		Identifier: strings.ToUpper(strings.TrimSpace(text)),
		Source:     ticket.SourceManual,
		At:         time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC),
		Outcome:    ticket.OutcomeSuccess,
		Message:    "Welcome",
	}, nil
}

func (d *fakeDoor) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetErr
}

func (d *fakeDoor) SetMode(_ context.Context, mode scanner.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if errors.Is(d.modeErr, scanner.ErrBusy) {
		return d.modeErr
	}
	d.mode = mode
	return d.modeErr
}

func (d *fakeDoor) Settings() scanner.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *fakeDoor) SetAutoConfirm(v bool) scanner.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = d.settings.WithAutoConfirm(v)
	return d.settings
}

func (d *fakeDoor) SetSoundEnabled(v bool) scanner.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = d.settings.WithSoundEnabled(v)
	return d.settings
}

func (d *fakeDoor) History() []ticket.Attempt { return []ticket.Attempt{} }

func (d *fakeDoor) Stats() directory.Occupancy { return directory.Occupancy{CheckedIn: 2, Total: 5} }

func do(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestScan_ReturnsAttempt(t *testing.T) {
	door := newFakeDoor()
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/scans", `{"input":"abc-123 "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got ticket.Attempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ticket.OutcomeSuccess, got.Outcome)
	assert.Equal(t, "ABC-123", got.Identifier)
	assert.Equal(t, []string{"abc-123 "}, door.submitted)
}

func TestScan_Blank(t *testing.T) {
	door := newFakeDoor()
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/scans", `{"input":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, CodeEmptyInput, e.Code)
	assert.NotEmpty(t, e.RequestID)
	assert.Equal(t, rec.Header().Get(middleware.HeaderRequestID), e.RequestID)
	assert.Empty(t, door.submitted)
}

func TestScan_Busy(t *testing.T) {
	door := newFakeDoor()
	door.submitErr = scanner.ErrSubmitDisabled
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/scans", `{"input":"ABC-123"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeBusy, decodeError(t, rec).Code)
}

func TestScan_BadJSON(t *testing.T) {
	h := New(Config{}, newFakeDoor(), nil).Handler()

	for _, body := range []string{`{"input":`, `{"ticket":"ABC-123"}`} {
		rec := do(t, h, http.MethodPost, "/api/v1/scans", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestReset(t *testing.T) {
	door := newFakeDoor()
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	door.resetErr = scanner.ErrBusy
	rec = do(t, h, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMode(t *testing.T) {
	door := newFakeDoor()
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPut, "/api/v1/mode", `{"mode":"manual"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var v scanner.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, scanner.ModeManual, v.Mode)

	rec = do(t, h, http.MethodPut, "/api/v1/mode", `{"mode":"KIOSK"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeUnknownMode, decodeError(t, rec).Code)

	door.modeErr = scanner.ErrBusy
	rec = do(t, h, http.MethodPut, "/api/v1/mode", `{"mode":"CAMERA"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, scanner.ModeManual, door.View().Mode)
}

func TestMode_CameraFailureStillSwitches(t *testing.T) {
	door := newFakeDoor()
	door.mode = scanner.ModeManual
	door.modeErr = camera.NewFailure(camera.FailurePermissionDenied, errors.New("EACCES"))
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPut, "/api/v1/mode", `{"mode":"CAMERA"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var v scanner.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, scanner.ModeCamera, v.Mode)
}

func TestPatchSettings(t *testing.T) {
	door := newFakeDoor()
	h := New(Config{}, door, nil).Handler()

	rec := do(t, h, http.MethodPatch, "/api/v1/settings", `{"soundEnabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var s scanner.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, scanner.Settings{AutoConfirm: true, SoundEnabled: false}, s)

	rec = do(t, h, http.MethodPatch, "/api/v1/settings", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.False(t, s.SoundEnabled)
}

func TestReadRoutes(t *testing.T) {
	h := New(Config{}, newFakeDoor(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"checkedIn":2,"total":5}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"IDLE"`)
}

func TestToken_GuardsMutatingRoutesOnly(t *testing.T) {
	door := newFakeDoor()
	h := New(Config{Token: "door-secret"}, door, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/scans", `{"input":"ABC-123"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, door.submitted)

	rec = do(t, h, http.MethodPost, "/api/v1/scans", `{"input":"ABC-123"}`, "Authorization", "Bearer door-secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/state", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFoundAndMethod(t *testing.T) {
	h := New(Config{}, newFakeDoor(), nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/state", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewFuncChecker("directory", func(context.Context) health.CheckResult {
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "empty"}
	}))
	h := New(Config{ServeMetrics: true}, newFakeDoor(), hm).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)

	// Generate one routed request so the HTTP histogram has a sample.
	do(t, h, http.MethodGet, "/api/v1/stats", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "turnstile_http_request_duration_seconds")

	rec = do(t, MetricsHandler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
