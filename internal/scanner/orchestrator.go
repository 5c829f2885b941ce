// SPDX-License-Identifier: MIT

// Package scanner wires the input paths to the verification engine. An
// Orchestrator owns the camera session, the manual entry gate, and the
// operator settings, and produces the View a door UI renders.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/audio"
	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/ledger"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/metrics"
	"github.com/ManuGH/turnstile/internal/verify"
)

var (
	// ErrBusy is returned by SetMode while a verification is in flight.
	ErrBusy = errors.New("scanner: verification in flight")
	// ErrSubmitDisabled is returned by Submit for blank input or while a
	// verification is in flight.
	ErrSubmitDisabled = errors.New("scanner: submit disabled")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scanner: closed")
	// ErrUnknownMode rejects modes other than CAMERA and MANUAL.
	ErrUnknownMode = errors.New("scanner: unknown mode")
)

// Directory is what the orchestrator needs from the ticket directory.
type Directory interface {
	verify.Directory
	MarkUsed(t ticket.Ticket) error
	Occupancy(eventID string) directory.Occupancy
}

// Config configures an Orchestrator.
type Config struct {
	Engine   verify.Config
	Mode     Mode
	Settings Settings
}

// Deps are the collaborators. Device may be nil when the door has no
// camera; CAMERA mode then shows the NO_CAMERA banner.
type Deps struct {
	Directory Directory
	Mutator   verify.Mutator
	Device    camera.Device
	Clock     clock.Clock
	Player    audio.Player
	Ledger    *ledger.Ledger
	Logger    zerolog.Logger
	NewID     func() string
}

// Hardware is the persistent camera banner.
type Hardware struct {
	Kind    camera.FailureKind `json:"kind"`
	Message string             `json:"message"`
	Detail  string             `json:"detail,omitempty"`
}

// View is a consistent snapshot for rendering.
type View struct {
	Mode          Mode                `json:"mode"`
	State         verify.State        `json:"state"`
	Last          *ticket.Attempt     `json:"last,omitempty"`
	History       []ticket.Attempt    `json:"history"`
	Stats         directory.Occupancy `json:"stats"`
	Settings      Settings            `json:"settings"`
	Camera        camera.State        `json:"camera"`
	Hardware      *Hardware           `json:"hardware,omitempty"`
	TargetEventID string              `json:"targetEventId,omitempty"`
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	engine *verify.Engine
	dir    Directory
	device camera.Device
	logger zerolog.Logger

	settings atomic.Pointer[Settings]

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // serialises mode changes and Close
	mode    Mode
	session *camera.Session
	missing *camera.Failure
	closed  bool
}

// New builds the engine and an orchestrator around it. No camera is
// started until Start.
func New(cfg Config, deps Deps) *Orchestrator {
	mode := cfg.Mode
	if _, ok := ParseMode(string(mode)); !ok {
		mode = ModeCamera
	}
	o := &Orchestrator{
		dir:    deps.Directory,
		device: deps.Device,
		logger: deps.Logger.With().Str(xglog.FieldComponent, "scanner").Logger(),
		mode:   mode,
	}
	settings := cfg.Settings
	o.settings.Store(&settings)
	o.base, o.cancel = context.WithCancel(context.Background())

	logger := deps.Logger
	o.engine = verify.New(cfg.Engine, verify.Deps{
		Directory: deps.Directory,
		Mutator:   deps.Mutator,
		Clock:     deps.Clock,
		Player:    deps.Player,
		Ledger:    deps.Ledger,
		Prefs:     func() verify.Prefs { return o.Settings().prefs() },
		Logger:    &logger,
		NewID:     deps.NewID,
	})
	o.engine.OnCheckedIn(o.markUsed)
	o.engine.OnIdle(o.resumeCamera)
	o.engine.OnResult(func(ticket.Attempt) {
		st := o.Stats()
		metrics.RecordOccupancy(st.CheckedIn, st.Total)
	})
	return o
}

// Engine returns the verification engine.
func (o *Orchestrator) Engine() *verify.Engine { return o.engine }

// Start activates the configured mode. A camera failure is returned but
// leaves the orchestrator usable in CAMERA mode with the banner set.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.mode == ModeCamera {
		return o.startCameraLocked(ctx)
	}
	return nil
}

// Mode returns the active input mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetMode switches input paths. It is rejected with ErrBusy while
// verifying. Switching to CAMERA always starts a fresh session; if the
// camera cannot be started the mode is still CAMERA and the returned
// error is the *camera.Failure behind the banner. Setting CAMERA again
// while the camera is in ERROR retries the start.
func (o *Orchestrator) SetMode(ctx context.Context, mode Mode) error {
	if _, ok := ParseMode(string(mode)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.engine.Verifying() {
		return ErrBusy
	}
	if mode == o.mode && !o.cameraNeedsRestartLocked() {
		return nil
	}

	prev := o.mode
	o.stopCameraLocked()
	o.mode = mode
	if prev != mode {
		o.logger.Info().
			Str(xglog.FieldEvent, "scanner.mode_changed").
			Str(xglog.FieldMode, string(mode)).
			Msg("input mode changed")
	}
	if mode == ModeCamera {
		return o.startCameraLocked(ctx)
	}
	return nil
}

func (o *Orchestrator) cameraNeedsRestartLocked() bool {
	if o.mode != ModeCamera {
		return false
	}
	if o.session == nil {
		return true
	}
	switch o.session.State() {
	case camera.StateError, camera.StateStopped:
		return true
	}
	return false
}

func (o *Orchestrator) startCameraLocked(ctx context.Context) error {
	o.missing = nil
	if o.device == nil {
		o.missing = camera.NewFailure(camera.FailureNoCamera, errors.New("no camera configured"))
		return o.missing
	}
	if o.session == nil {
		o.session = camera.NewSession(o.device, o.logger)
	}
	if err := o.session.Start(ctx, o.onPayload); err != nil {
		return err
	}
	// A result on screen keeps the camera paused until it is cleared.
	if o.engine.State() != verify.StateIdle {
		o.session.Pause()
	}
	return nil
}

func (o *Orchestrator) stopCameraLocked() {
	if o.session != nil {
		o.session.Stop()
		o.session = nil
	}
	o.missing = nil
}

// onPayload runs on the decode loop with the session already paused.
// Verification happens off the loop so Stop never waits on a mutator.
func (o *Orchestrator) onPayload(payload string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.scan(payload, ticket.SourceCamera)
	}()
}

func (o *Orchestrator) scan(raw string, source ticket.Source) {
	_, err := o.engine.Scan(o.base, raw, source)
	switch {
	case err == nil:
	case errors.Is(err, verify.ErrBusy):
		// The running cycle resumes the camera when it is cleared.
		metrics.IncCameraPayload("dropped_busy")
	case errors.Is(err, verify.ErrClosed):
	default:
		o.logger.Error().Err(err).Str(xglog.FieldSource, string(source)).Msg("scan failed")
	}
}

// CanSubmit reports whether Submit would accept text right now.
func (o *Orchestrator) CanSubmit(text string) bool {
	return strings.TrimSpace(text) != "" && !o.engine.Verifying()
}

// Submit runs manual entry through the same pipeline as camera payloads.
// It pauses the camera for the duration of the cycle.
func (o *Orchestrator) Submit(ctx context.Context, text string) (ticket.Attempt, error) {
	if !o.CanSubmit(text) {
		return ticket.Attempt{}, ErrSubmitDisabled
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ticket.Attempt{}, ErrClosed
	}
	if o.session != nil {
		o.session.Pause()
	}
	o.mu.Unlock()

	a, err := o.engine.Scan(ctx, text, ticket.SourceManual)
	switch {
	case errors.Is(err, verify.ErrBusy):
		return a, fmt.Errorf("%w: %w", ErrSubmitDisabled, err)
	case errors.Is(err, verify.ErrClosed):
		return a, ErrClosed
	}
	return a, err
}

// Reset clears the displayed result ("scan next").
func (o *Orchestrator) Reset() error {
	if err := o.engine.Reset(); err != nil {
		if errors.Is(err, verify.ErrNotIdle) {
			return ErrBusy
		}
		return err
	}
	return nil
}

func (o *Orchestrator) resumeCamera() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil && o.mode == ModeCamera {
		o.session.Resume()
	}
}

func (o *Orchestrator) markUsed(t ticket.Ticket) {
	if err := o.dir.MarkUsed(t); err != nil {
		o.logger.Warn().Err(err).Str(xglog.FieldTicketID, t.ID).Msg("could not mark ticket used locally")
	}
}

// Settings returns the current operator settings.
func (o *Orchestrator) Settings() Settings { return *o.settings.Load() }

// SetAutoConfirm swaps in settings with AutoConfirm set to v.
func (o *Orchestrator) SetAutoConfirm(v bool) Settings {
	return o.update(func(s Settings) Settings { return s.WithAutoConfirm(v) })
}

// SetSoundEnabled swaps in settings with SoundEnabled set to v.
func (o *Orchestrator) SetSoundEnabled(v bool) Settings {
	return o.update(func(s Settings) Settings { return s.WithSoundEnabled(v) })
}

func (o *Orchestrator) update(fn func(Settings) Settings) Settings {
	for {
		cur := o.settings.Load()
		next := fn(*cur)
		if o.settings.CompareAndSwap(cur, &next) {
			return next
		}
	}
}

// Stats reports occupancy for the target event, or every event when the
// door is unscoped.
func (o *Orchestrator) Stats() directory.Occupancy {
	return o.dir.Occupancy(o.engine.TargetEventID())
}

// History returns the ledger, most recent first.
func (o *Orchestrator) History() []ticket.Attempt { return o.engine.Ledger().All() }

// View snapshots everything a UI needs.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	mode := o.mode
	camState := camera.StateStopped
	var failure *camera.Failure
	switch {
	case o.missing != nil:
		camState = camera.StateError
		f := *o.missing
		failure = &f
	case o.session != nil:
		camState = o.session.State()
		failure = o.session.Failure()
	}
	o.mu.Unlock()

	v := View{
		Mode:          mode,
		State:         o.engine.State(),
		History:       o.History(),
		Stats:         o.Stats(),
		Settings:      o.Settings(),
		Camera:        camState,
		TargetEventID: o.engine.TargetEventID(),
	}
	if last, ok := o.engine.Last(); ok {
		v.Last = &last
	}
	if mode == ModeCamera && camState == camera.StateError && failure != nil {
		v.Hardware = &Hardware{Kind: failure.Kind, Message: failure.Hint()}
		if failure.Err != nil {
			v.Hardware.Detail = failure.Err.Error()
		}
	}
	return v
}

// CameraState reports the session state, STOPPED when there is none.
func (o *Orchestrator) CameraState() camera.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		if o.missing != nil {
			return camera.StateError
		}
		return camera.StateStopped
	}
	return o.session.State()
}

// Close releases the camera, stops the engine and waits for in-flight
// camera scans.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.stopCameraLocked()
	o.mu.Unlock()

	o.cancel()
	o.engine.Close()
	o.wg.Wait()
}
