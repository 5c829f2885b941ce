// SPDX-License-Identifier: MIT

package scanner_test

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/camera/stub"
	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/scanner"
	"github.com/ManuGH/turnstile/internal/verify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var start = time.Date(2024, 9, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	orch *scanner.Orchestrator
	dir  *directory.Snapshot
	dev  *stub.Device
	clk  *clock.FakeClock
}

func admit(context.Context, string) (verify.Result, error) {
	return verify.Result{Success: true}, nil
}

func newFixture(t *testing.T, mode scanner.Mode, mut verify.Mutator) *fixture {
	t.Helper()
	used := start.Add(-time.Hour)
	dir := directory.New(zerolog.Nop())
	dir.Replace(directory.Data{
		Events: []ticket.Event{
			{ID: "E1", Title: "Summer Gala", Date: start},
			{ID: "E2", Title: "Winter Ball", Date: start.AddDate(0, 3, 0)},
		},
		Tickets: []ticket.Ticket{
			{ID: "ABC-123", EventID: "E1", HolderName: "Ada"},
			{ID: "ABC-124", EventID: "E1"},
			{ID: "USED-001", EventID: "E1", Used: true, CheckedInAt: &used},
			{ID: "OTHER-01", EventID: "E2"},
		},
	})
	f := &fixture{dir: dir, dev: stub.New("cam0"), clk: clock.Fake(start)}
	f.orch = scanner.New(scanner.Config{
		Engine:   verify.Config{TargetEventID: "E1"},
		Mode:     mode,
		Settings: scanner.DefaultSettings(),
	}, scanner.Deps{
		Directory: dir,
		Mutator:   mut,
		Device:    f.dev,
		Clock:     f.clk,
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(f.orch.Close)
	return f
}

func (f *fixture) results() <-chan ticket.Attempt {
	ch := make(chan ticket.Attempt, 8)
	f.orch.Engine().OnResult(func(a ticket.Attempt) { ch <- a })
	return ch
}

func recv(t *testing.T, ch <-chan ticket.Attempt) ticket.Attempt {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
		return ticket.Attempt{}
	}
}

func TestManualAndCameraParity(t *testing.T) {
	inputs := []string{" abc-123 ", "TICKET:abc-124", "USED-001", "OTHER-01", "NOPE-999", "ab", "x!@#$%^&*"}

	manual := newFixture(t, scanner.ModeManual, verify.MutatorFunc(admit))
	require.NoError(t, manual.orch.Start(context.Background()))
	cam := newFixture(t, scanner.ModeCamera, verify.MutatorFunc(admit))
	require.NoError(t, cam.orch.Start(context.Background()))
	camResults := cam.results()

	ignore := cmpopts.IgnoreFields(ticket.Attempt{}, "ID", "Source")
	for _, in := range inputs {
		got, err := manual.orch.Submit(context.Background(), in)
		require.NoError(t, err, in)
		assert.Equal(t, ticket.SourceManual, got.Source)

		cam.dev.Emit(in)
		want := recv(t, camResults)
		assert.Equal(t, ticket.SourceCamera, want.Source)

		if diff := cmp.Diff(want, got, ignore); diff != "" {
			t.Errorf("input %q: camera and manual differ (-camera +manual):\n%s", in, diff)
		}

		require.NoError(t, manual.orch.Reset())
		require.NoError(t, cam.orch.Reset())
		require.Eventually(t, func() bool { return cam.orch.CameraState() == camera.StateRunning },
			time.Second, 5*time.Millisecond)
	}

	assert.Equal(t, directory.Occupancy{CheckedIn: 3, Total: 3}, manual.orch.Stats())
	assert.Equal(t, manual.orch.Stats(), cam.orch.Stats())
}

func TestPermissionDeniedStartShowsBanner(t *testing.T) {
	f := newFixture(t, scanner.ModeCamera, verify.MutatorFunc(admit))
	f.dev.FailAcquire(fs.ErrPermission)

	err := f.orch.Start(context.Background())
	var failure *camera.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, camera.FailurePermissionDenied, failure.Kind)

	v := f.orch.View()
	assert.Equal(t, scanner.ModeCamera, v.Mode)
	assert.Equal(t, camera.StateError, v.Camera)
	require.NotNil(t, v.Hardware)
	assert.Equal(t, camera.FailurePermissionDenied, v.Hardware.Kind)
	assert.Contains(t, v.Hardware.Message, "manual entry")
	assert.Zero(t, f.dev.Decodes())
	assert.False(t, f.dev.Held())

	// Manual entry still works.
	a, err := f.orch.Submit(context.Background(), "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, ticket.OutcomeSuccess, a.Outcome)

	// The banner stays until the camera comes back.
	assert.NotNil(t, f.orch.View().Hardware)
	require.NoError(t, f.orch.Reset())
	f.dev.FailAcquire(nil)
	require.NoError(t, f.orch.SetMode(context.Background(), scanner.ModeCamera))
	v = f.orch.View()
	assert.Nil(t, v.Hardware)
	assert.Equal(t, camera.StateRunning, v.Camera)
}

func TestNoDeviceShowsNoCameraBanner(t *testing.T) {
	orch := scanner.New(scanner.Config{Mode: scanner.ModeCamera, Settings: scanner.DefaultSettings()},
		scanner.Deps{Directory: directory.New(zerolog.Nop()), Mutator: verify.MutatorFunc(admit), Logger: zerolog.Nop()})
	defer orch.Close()

	var failure *camera.Failure
	require.ErrorAs(t, orch.Start(context.Background()), &failure)
	v := orch.View()
	require.NotNil(t, v.Hardware)
	assert.Equal(t, camera.FailureNoCamera, v.Hardware.Kind)

	require.NoError(t, orch.SetMode(context.Background(), scanner.ModeManual))
	assert.Nil(t, orch.View().Hardware)
}

func TestTimeoutResumesCamera(t *testing.T) {
	hang := verify.MutatorFunc(func(ctx context.Context, _ string) (verify.Result, error) {
		<-ctx.Done()
		return verify.Result{}, ctx.Err()
	})
	f := newFixture(t, scanner.ModeCamera, hang)
	require.NoError(t, f.orch.Start(context.Background()))
	results := f.results()

	f.dev.Emit("ABC-123")
	f.clk.WaitForTimers(1)
	assert.Equal(t, camera.StatePaused, f.orch.CameraState())
	assert.Equal(t, verify.StateVerifying, f.orch.View().State)

	f.clk.Advance(verify.DefaultTimeout)
	a := recv(t, results)
	assert.Equal(t, ticket.OutcomeTimeout, a.Outcome)

	hist := f.orch.History()
	require.Len(t, hist, 1)
	assert.Equal(t, ticket.OutcomeTimeout, hist[0].Outcome)
	assert.Equal(t, camera.StatePaused, f.orch.CameraState())

	f.clk.WaitForTimers(1)
	f.clk.Advance(verify.DefaultFailureDelay)
	assert.Equal(t, verify.StateIdle, f.orch.View().State)
	assert.Equal(t, camera.StateRunning, f.orch.CameraState())
	assert.True(t, f.dev.Held())
}

func TestSetModeAndSubmitRejectedWhileVerifying(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	slow := verify.MutatorFunc(func(ctx context.Context, _ string) (verify.Result, error) {
		close(entered)
		<-release
		return verify.Result{Success: true}, nil
	})
	f := newFixture(t, scanner.ModeManual, slow)
	require.NoError(t, f.orch.Start(context.Background()))

	done := make(chan ticket.Attempt, 1)
	go func() {
		a, _ := f.orch.Submit(context.Background(), "ABC-123")
		done <- a
	}()
	<-entered

	assert.ErrorIs(t, f.orch.SetMode(context.Background(), scanner.ModeCamera), scanner.ErrBusy)
	assert.False(t, f.orch.CanSubmit("ABC-124"))
	_, err := f.orch.Submit(context.Background(), "ABC-124")
	assert.ErrorIs(t, err, scanner.ErrSubmitDisabled)
	assert.ErrorIs(t, f.orch.Reset(), scanner.ErrBusy)
	assert.Equal(t, scanner.ModeManual, f.orch.Mode())
	assert.False(t, f.dev.Held())

	close(release)
	assert.Equal(t, ticket.OutcomeSuccess, (<-done).Outcome)
	assert.NoError(t, f.orch.SetMode(context.Background(), scanner.ModeCamera))
}

func TestSubmitRejectsBlank(t *testing.T) {
	f := newFixture(t, scanner.ModeManual, verify.MutatorFunc(admit))
	for _, in := range []string{"", "   ", "\t\n"} {
		assert.False(t, f.orch.CanSubmit(in))
		_, err := f.orch.Submit(context.Background(), in)
		assert.ErrorIs(t, err, scanner.ErrSubmitDisabled)
	}
	assert.Zero(t, f.orch.Engine().Ledger().Len())
}

func TestSetModeReleasesCamera(t *testing.T) {
	f := newFixture(t, scanner.ModeCamera, verify.MutatorFunc(admit))
	require.NoError(t, f.orch.Start(context.Background()))
	assert.True(t, f.dev.Held())

	require.NoError(t, f.orch.SetMode(context.Background(), scanner.ModeManual))
	assert.False(t, f.dev.Held())
	assert.Equal(t, camera.StateStopped, f.orch.View().Camera)

	require.NoError(t, f.orch.SetMode(context.Background(), scanner.ModeCamera))
	assert.True(t, f.dev.Held())
	assert.Equal(t, 2, f.dev.Acquisitions())

	// Same mode again is a no-op while healthy.
	require.NoError(t, f.orch.SetMode(context.Background(), scanner.ModeCamera))
	assert.Equal(t, 2, f.dev.Acquisitions())

	assert.ErrorIs(t, f.orch.SetMode(context.Background(), "HOLOGRAM"), scanner.ErrUnknownMode)

	f.orch.Close()
	assert.False(t, f.dev.Held())
}

func TestCameraFeedFailureSurfacesBanner(t *testing.T) {
	f := newFixture(t, scanner.ModeCamera, verify.MutatorFunc(admit))
	require.NoError(t, f.orch.Start(context.Background()))

	f.dev.Break(camera.NewFailure(camera.FailureNoCamera, errors.New("device unplugged")))
	require.Eventually(t, func() bool { return f.orch.CameraState() == camera.StateError },
		time.Second, 5*time.Millisecond)
	v := f.orch.View()
	require.NotNil(t, v.Hardware)
	assert.Equal(t, camera.FailureNoCamera, v.Hardware.Kind)
	assert.Equal(t, "device unplugged", v.Hardware.Detail)
	assert.False(t, f.dev.Held())
}

func TestSettingsSwap(t *testing.T) {
	f := newFixture(t, scanner.ModeManual, verify.MutatorFunc(admit))
	before := f.orch.Settings()

	after := f.orch.SetAutoConfirm(false)
	assert.False(t, after.AutoConfirm)
	assert.True(t, before.AutoConfirm, "earlier values are not mutated")
	assert.Equal(t, after, f.orch.Settings())

	a, err := f.orch.Submit(context.Background(), "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, ticket.OutcomeSuccess, a.Outcome)
	f.clk.Advance(time.Minute)
	assert.Equal(t, verify.State(ticket.OutcomeSuccess), f.orch.View().State)

	assert.False(t, f.orch.SetSoundEnabled(false).SoundEnabled)
	assert.Equal(t, scanner.Settings{}, f.orch.Settings())
}

func TestViewReflectsResult(t *testing.T) {
	f := newFixture(t, scanner.ModeManual, verify.MutatorFunc(admit))
	_, err := f.orch.Submit(context.Background(), "used-001")
	require.NoError(t, err)

	v := f.orch.View()
	require.NotNil(t, v.Last)
	assert.Equal(t, ticket.OutcomeAlreadyUsed, v.Last.Outcome)
	assert.Equal(t, "E1", v.TargetEventID)
	assert.Equal(t, directory.Occupancy{CheckedIn: 1, Total: 3}, v.Stats)
	assert.Len(t, v.History, 1)
	assert.Equal(t, scanner.ModeManual, v.Mode)
}
