// SPDX-License-Identifier: MIT

// Package verify is the check-in decision core. An Engine turns one raw
// identifier at a time into a terminal outcome, calls the authoritative
// mutator for tickets that pass the local rules, and drives the
// IDLE -> VERIFYING -> outcome -> IDLE cycle.
package verify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/turnstile/internal/audio"
	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/fsm"
	"github.com/ManuGH/turnstile/internal/ledger"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/metrics"
	"github.com/ManuGH/turnstile/internal/telemetry"
)

var (
	// ErrNotIdle is returned by Reset while a verification is in flight.
	ErrNotIdle = errors.New("verify: verification in flight")
	// ErrBusy is returned by Scan when another scan is being verified.
	// Scans are rejected, never queued.
	ErrBusy = errors.New("verify: busy")
	// ErrClosed is returned by Scan after Close.
	ErrClosed = errors.New("verify: engine closed")
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultSuccessDelay = 1500 * time.Millisecond
	DefaultFailureDelay = 2500 * time.Millisecond
)

// Directory is read access to ticket and event records.
type Directory interface {
	Ticket(id string) (ticket.Ticket, bool)
	Event(id string) (ticket.Event, bool)
}

// Result is the mutator's answer.
type Result struct {
	Success bool
	Message string
}

// Mutator durably marks a ticket used. It is the source of truth and is
// called at most once per engine-confirmed, non-duplicate ticket.
type Mutator interface {
	CheckIn(ctx context.Context, ticketID string) (Result, error)
}

// MutatorFunc adapts a function to Mutator.
type MutatorFunc func(ctx context.Context, ticketID string) (Result, error)

func (f MutatorFunc) CheckIn(ctx context.Context, ticketID string) (Result, error) {
	return f(ctx, ticketID)
}

// Prefs are the operator toggles the engine consults per cycle.
type Prefs struct {
	AutoConfirm  bool
	SoundEnabled bool
}

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	// TargetEventID scopes admission to one event. Empty admits any event.
	TargetEventID string
	Timeout       time.Duration
	SuccessDelay  time.Duration
	FailureDelay  time.Duration
	// Location renders check-in times in messages. Defaults to UTC.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SuccessDelay <= 0 {
		c.SuccessDelay = DefaultSuccessDelay
	}
	if c.FailureDelay <= 0 {
		c.FailureDelay = DefaultFailureDelay
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Deps are the collaborators of an Engine. Directory and Mutator are
// required; everything else has a default.
type Deps struct {
	Directory Directory
	Mutator   Mutator
	Clock     clock.Clock
	Player    audio.Player
	Ledger    *ledger.Ledger
	Prefs     func() Prefs
	Logger    *zerolog.Logger
	NewID     func() string
}

// Engine runs one verification cycle at a time.
type Engine struct {
	cfg    Config
	dir    Directory
	mut    Mutator
	clk    clock.Clock
	player audio.Player
	ledger *ledger.Ledger
	prefs  func() Prefs
	newID  func() string
	logger zerolog.Logger
	tracer trace.Tracer

	machine *fsm.Machine[State, event]

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	cycle     uint64
	last      *ticket.Attempt
	reset     *clock.Timer
	closed    bool
	onChecked []func(ticket.Ticket)
	onIdle    []func()
	onResult  []func(ticket.Attempt)
}

// New builds an IDLE engine.
func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		dir:     deps.Directory,
		mut:     deps.Mutator,
		clk:     deps.Clock,
		player:  deps.Player,
		ledger:  deps.Ledger,
		prefs:   deps.Prefs,
		newID:   deps.NewID,
		tracer:  telemetry.Tracer("turnstile/verify"),
		machine: fsm.MustNew(StateIdle, transitions()),
	}
	if e.clk == nil {
		e.clk = clock.Real()
	}
	if e.player == nil {
		e.player = audio.Discard{}
	}
	if e.ledger == nil {
		e.ledger = ledger.New(ledger.DefaultCapacity)
	}
	if e.prefs == nil {
		e.prefs = func() Prefs { return Prefs{AutoConfirm: true, SoundEnabled: true} }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if deps.Logger != nil {
		e.logger = deps.Logger.With().Str(xglog.FieldComponent, "verify").Logger()
	} else {
		e.logger = xglog.WithComponent("verify")
	}
	e.base, e.cancel = context.WithCancel(context.Background())
	e.machine.Observe(func(from, to State, ev event) {
		e.logger.Debug().
			Str(xglog.FieldEvent, "verify.transition").
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Msg("engine state changed")
	})
	return e
}

// OnCheckedIn registers a hook called with the used ticket after every
// successful check-in, including one confirmed after a timeout.
func (e *Engine) OnCheckedIn(fn func(ticket.Ticket)) {
	e.mu.Lock()
	e.onChecked = append(e.onChecked, fn)
	e.mu.Unlock()
}

// OnIdle registers a hook called whenever a terminal state is cleared.
func (e *Engine) OnIdle(fn func()) {
	e.mu.Lock()
	e.onIdle = append(e.onIdle, fn)
	e.mu.Unlock()
}

// OnResult registers a hook called with every terminal attempt.
func (e *Engine) OnResult(fn func(ticket.Attempt)) {
	e.mu.Lock()
	e.onResult = append(e.onResult, fn)
	e.mu.Unlock()
}

// State returns the machine state.
func (e *Engine) State() State { return e.machine.State() }

// Verifying reports whether a mutator call is outstanding.
func (e *Engine) Verifying() bool { return e.machine.State() == StateVerifying }

// Last returns the attempt currently displayed, if the engine is in a
// terminal state.
func (e *Engine) Last() (ticket.Attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return ticket.Attempt{}, false
	}
	return *e.last, true
}

// Ledger returns the scan history.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// TargetEventID returns the admission scope.
func (e *Engine) TargetEventID() string { return e.cfg.TargetEventID }

// Scan verifies one raw identifier. From a terminal state it starts a
// new cycle directly; while VERIFYING it returns ErrBusy. The caller's
// ctx does not bound the mutator wait, only the configured timeout does.
func (e *Engine) Scan(ctx context.Context, raw string, source ticket.Source) (ticket.Attempt, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ticket.Attempt{}, ErrClosed
	}
	switch st := e.machine.State(); {
	case st == StateVerifying:
		e.mu.Unlock()
		return ticket.Attempt{}, ErrBusy
	case st.Terminal():
		e.clearLocked()
	}
	if _, err := e.machine.Fire(ctx, evScan); err != nil {
		e.mu.Unlock()
		return ticket.Attempt{}, ErrBusy
	}
	e.cycle++
	cycle := e.cycle
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	metrics.SetVerifying(true)
	defer metrics.SetVerifying(false)

	a := ticket.Attempt{
		ID:     e.newID(),
		Raw:    raw,
		Source: source,
		At:     e.clk.Now().UTC(),
	}
	ctx, span := e.tracer.Start(ctx, "checkin.scan",
		trace.WithAttributes(telemetry.CheckInAttributes(a.ID, "", "", string(source))...))
	defer span.End()

	mutatorResult := e.decide(ctx, &a)
	span.SetAttributes(telemetry.OutcomeAttributes(string(a.Outcome), mutatorResult)...)

	e.finish(cycle, a)
	return a, nil
}

// Reset clears a terminal state (operator "scan next"). It is a no-op
// when already IDLE and fails with ErrNotIdle while VERIFYING.
func (e *Engine) Reset() error {
	e.mu.Lock()
	st := e.machine.State()
	if st == StateVerifying {
		e.mu.Unlock()
		return ErrNotIdle
	}
	if st == StateIdle {
		e.mu.Unlock()
		return nil
	}
	e.clearLocked()
	hooks := append([]func(){}, e.onIdle...)
	e.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Close cancels outstanding mutator calls and pending auto-resets and
// waits for in-flight work to drain.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.reset.Stop()
	e.reset = nil
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// clearLocked moves a terminal state back to IDLE without running hooks.
func (e *Engine) clearLocked() {
	e.reset.Stop()
	e.reset = nil
	e.last = nil
	_, _ = e.machine.Fire(context.Background(), evReset)
}

func (e *Engine) finish(cycle uint64, a ticket.Attempt) {
	prefs := e.prefs()

	e.mu.Lock()
	if _, err := e.machine.Fire(context.Background(), outcomeEvent(a.Outcome)); err != nil {
		e.logger.Error().Err(err).Str(xglog.FieldAttemptID, a.ID).Msg("engine could not enter terminal state")
	}
	e.last = &a
	e.ledger.Record(a)
	if prefs.AutoConfirm && !e.closed {
		delay := e.cfg.FailureDelay
		if a.Outcome.Admitted() {
			delay = e.cfg.SuccessDelay
		}
		e.reset = e.clk.AfterFunc(delay, func() { e.autoReset(cycle) })
	}
	hooks := append([]func(ticket.Attempt){}, e.onResult...)
	e.mu.Unlock()

	metrics.RecordScan(string(a.Outcome), string(a.Source))
	e.logAttempt(a)
	if prefs.SoundEnabled {
		e.player.Play(Cue(a.Outcome))
	}
	for _, fn := range hooks {
		fn(a)
	}
}

func (e *Engine) autoReset(cycle uint64) {
	e.mu.Lock()
	if e.cycle != cycle || !e.machine.State().Terminal() {
		e.mu.Unlock()
		return
	}
	e.reset = nil
	e.last = nil
	_, _ = e.machine.Fire(context.Background(), evReset)
	hooks := append([]func(){}, e.onIdle...)
	e.mu.Unlock()

	e.logger.Debug().Str(xglog.FieldEvent, "verify.auto_reset").Msg("result cleared")
	for _, fn := range hooks {
		fn()
	}
}

func (e *Engine) checkedIn(t ticket.Ticket) {
	e.mu.Lock()
	hooks := append([]func(ticket.Ticket){}, e.onChecked...)
	e.mu.Unlock()
	for _, fn := range hooks {
		fn(t)
	}
}

func (e *Engine) logAttempt(a ticket.Attempt) {
	ev := e.logger.Info()
	if a.Outcome.Class() == ticket.ClassBackendError {
		ev = e.logger.Warn()
	}
	ev = ev.Str(xglog.FieldEvent, "scan.verified").
		Str(xglog.FieldAttemptID, a.ID).
		Str(xglog.FieldSource, string(a.Source)).
		Str(xglog.FieldOutcome, string(a.Outcome))
	if a.Identifier != "" {
		ev = ev.Str(xglog.FieldTicketID, a.Identifier)
	}
	if a.Ticket != nil {
		ev = ev.Str(xglog.FieldEventID, a.Ticket.EventID)
	}
	ev.Msg(a.Message)
}

// Cue maps an outcome to its audio cue. Duplicates get the double pulse
// so they are audibly distinct from both admits and faults.
func Cue(o ticket.Outcome) audio.Kind {
	switch o {
	case ticket.OutcomeSuccess:
		return audio.KindSuccess
	case ticket.OutcomeAlreadyUsed:
		return audio.KindWarning
	default:
		return audio.KindError
	}
}
