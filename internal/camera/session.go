// SPDX-License-Identifier: MIT

// Package camera owns the video capture lifecycle and the frame decode
// loop. Hardware specifics live behind the Device port; adapters are in
// the v4l2 and stub subpackages.
package camera

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/fsm"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/metrics"
)

// State is the session lifecycle state.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateStarting      State = "STARTING"
	StateRunning       State = "RUNNING"
	StatePaused        State = "PAUSED"
	StateStopped       State = "STOPPED"
	StateError         State = "ERROR"
)

type event string

const (
	evStart   event = "start"
	evStarted event = "started"
	evPause   event = "pause"
	evResume  event = "resume"
	evStop    event = "stop"
	evFail    event = "fail"
)

var (
	// ErrAlreadyActive is returned by Start on a session that holds the device.
	ErrAlreadyActive = errors.New("camera: session already active")
	// ErrStopped is returned by Start when Stop raced the acquisition.
	ErrStopped = errors.New("camera: session stopped during start")
)

// Device acquires the physical camera.
type Device interface {
	Name() string
	Acquire(ctx context.Context) (Feed, error)
}

// Feed is an acquired camera. Decode blocks until a payload is decoded,
// ctx ends, or the feed fails. Release must be idempotent and must
// unblock a pending Decode.
type Feed interface {
	Decode(ctx context.Context) (string, error)
	Release() error
}

// Sink receives decoded payloads. The session is already PAUSED when the
// sink runs; the caller resumes it once the payload has been handled.
type Sink func(payload string)

func transitions() []fsm.Transition[State, event] {
	t := []fsm.Transition[State, event]{
		{From: StateUninitialized, Event: evStart, To: StateStarting},
		{From: StateStopped, Event: evStart, To: StateStarting},
		{From: StateError, Event: evStart, To: StateStarting},
		{From: StateStarting, Event: evStarted, To: StateRunning},
		{From: StateRunning, Event: evPause, To: StatePaused},
		{From: StatePaused, Event: evResume, To: StateRunning},
		{From: StateUninitialized, Event: evStop, To: StateStopped},
	}
	for _, s := range []State{StateStarting, StateRunning, StatePaused} {
		t = append(t,
			fsm.Transition[State, event]{From: s, Event: evStop, To: StateStopped},
			fsm.Transition[State, event]{From: s, Event: evFail, To: StateError},
		)
	}
	return t
}

// Session is owned by exactly one orchestrator and never shared.
type Session struct {
	device  Device
	logger  zerolog.Logger
	machine *fsm.Machine[State, event]

	mu       sync.Mutex
	feed     Feed
	cancel   context.CancelFunc
	done     chan struct{}
	resumeCh chan struct{}
	failure  *Failure
}

// NewSession returns an UNINITIALIZED session for device.
func NewSession(device Device, logger zerolog.Logger) *Session {
	s := &Session{
		device:  device,
		logger:  logger.With().Str(xglog.FieldDevice, device.Name()).Logger(),
		machine: fsm.MustNew(StateUninitialized, transitions()),
	}
	s.machine.Observe(func(from, to State, ev event) {
		metrics.SetCameraState(string(to))
		s.logger.Debug().
			Str(xglog.FieldEvent, "camera.transition").
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Msg("camera state changed")
	})
	metrics.SetCameraState(string(StateUninitialized))
	return s
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.machine.State() }

// Failure returns the failure that put the session into ERROR, if any.
func (s *Session) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return nil
	}
	f := *s.failure
	return &f
}

// Start acquires the device and launches the decode loop. Every error it
// returns is a *Failure (session in ERROR) or ErrAlreadyActive/ErrStopped.
func (s *Session) Start(ctx context.Context, sink Sink) error {
	s.mu.Lock()
	if _, err := s.machine.Fire(ctx, evStart); err != nil {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.failure = nil
	s.mu.Unlock()

	feed, err := s.device.Acquire(ctx)
	if err != nil {
		f := asFailure(err)
		s.mu.Lock()
		if _, ferr := s.machine.Fire(context.Background(), evFail); ferr == nil {
			s.failure = f
		}
		s.mu.Unlock()
		metrics.IncCameraFailure(string(f.Kind))
		s.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "camera.start_failed").
			Str(xglog.FieldFailure, string(f.Kind)).
			Msg("camera could not be started")
		return f
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if _, err := s.machine.Fire(ctx, evStarted); err != nil {
		// Stop ran while we were acquiring.
		s.mu.Unlock()
		cancel()
		_ = feed.Release()
		return ErrStopped
	}
	s.feed = feed
	s.cancel = cancel
	s.done = done
	s.resumeCh = nil
	s.mu.Unlock()

	s.logger.Info().Str(xglog.FieldEvent, "camera.started").Msg("camera running")
	go s.loop(loopCtx, feed, sink, done)
	return nil
}

// Pause stops payload delivery without releasing the device.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked()
}

func (s *Session) pauseLocked() bool {
	if _, err := s.machine.Fire(context.Background(), evPause); err != nil {
		return false
	}
	s.resumeCh = make(chan struct{})
	return true
}

// Resume restarts payload delivery after Pause.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.machine.Fire(context.Background(), evResume); err != nil {
		return
	}
	if s.resumeCh != nil {
		close(s.resumeCh)
		s.resumeCh = nil
	}
}

// Stop releases the device and ends the decode loop. It is idempotent
// and safe in every state.
func (s *Session) Stop() {
	s.mu.Lock()
	feed, cancel, done := s.feed, s.cancel, s.done
	s.feed, s.cancel, s.done = nil, nil, nil
	if s.resumeCh != nil {
		close(s.resumeCh)
		s.resumeCh = nil
	}
	_, _ = s.machine.Fire(context.Background(), evStop)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if feed != nil {
		if err := feed.Release(); err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "camera.release_failed").Msg("camera release reported an error")
		}
	}
	if done != nil {
		<-done
	}
	if feed != nil {
		s.logger.Info().Str(xglog.FieldEvent, "camera.stopped").Msg("camera released")
	}
}

func (s *Session) loop(ctx context.Context, feed Feed, sink Sink, done chan struct{}) {
	defer close(done)
	for {
		if !s.waitResumed(ctx) {
			return
		}
		payload, err := feed.Decode(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(feed, err)
			return
		}
		if payload == "" {
			continue
		}

		s.mu.Lock()
		delivered := s.machine.State() == StateRunning && s.pauseLocked()
		s.mu.Unlock()
		if !delivered {
			metrics.IncCameraPayload("dropped_paused")
			continue
		}
		metrics.IncCameraPayload("delivered")
		sink(payload)
	}
}

func (s *Session) waitResumed(ctx context.Context) bool {
	s.mu.Lock()
	ch := s.resumeCh
	s.mu.Unlock()
	if ch == nil {
		return ctx.Err() == nil
	}
	select {
	case <-ch:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

// fail is called from the decode loop when the feed dies underneath us.
func (s *Session) fail(feed Feed, err error) {
	f := asFailure(err)
	_ = feed.Release()

	s.mu.Lock()
	if _, ferr := s.machine.Fire(context.Background(), evFail); ferr != nil {
		s.mu.Unlock()
		return
	}
	s.failure = f
	if s.cancel != nil {
		s.cancel()
	}
	s.feed, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	metrics.IncCameraFailure(string(f.Kind))
	s.logger.Error().
		Err(err).
		Str(xglog.FieldEvent, "camera.feed_failed").
		Str(xglog.FieldFailure, string(f.Kind)).
		Msg("camera feed failed, device released")
}
