// SPDX-License-Identifier: MIT

// Package resilience holds the circuit breaker that sits in front of the
// remote check-in service.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/metrics"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned without calling fn while the breaker is open
// or while a half-open probe is already running.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

// CircuitBreaker opens after threshold consecutive failures. Once the
// cooldown has passed it admits exactly one probe: success closes it,
// failure restarts the cooldown.
//
// Each closed or open period is a generation. A call that finishes after
// its generation ended does not touch the counters.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	clock     clock.Clock
	isFailure func(error) bool

	mu         sync.Mutex
	state      State
	generation uint64
	streak     int
	openedAt   time.Time
	probing    bool
}

type Option func(*CircuitBreaker)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate decides which errors count against the breaker.
// By default every non-nil error does.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// NewCircuitBreaker returns a closed breaker. Non-positive threshold and
// cooldown fall back to 3 and 30s.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock.Real(),
		isFailure: func(err error) bool { return err != nil },
		state:     StateClosed,
	}
	if cb.threshold <= 0 {
		cb.threshold = defaultThreshold
	}
	if cb.cooldown <= 0 {
		cb.cooldown = defaultCooldown
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetCircuitBreakerState(name, string(StateClosed))
	return cb
}

// Execute runs fn unless the breaker refuses. A panic in fn counts as a
// failure and is re-raised.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	gen, probe, err := cb.admit()
	if err != nil {
		return err
	}

	failed := true
	defer func() { cb.settle(gen, probe, failed) }()

	result := fn()
	failed = cb.isFailure(result)
	return result
}

func (cb *CircuitBreaker) admit() (gen uint64, probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentLocked() {
	case StateClosed:
		return cb.generation, false, nil
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			return cb.generation, true, nil
		}
	}
	return 0, false, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
}

func (cb *CircuitBreaker) settle(gen uint64, probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if failed {
			cb.tripLocked("half_open_failure")
		} else {
			cb.setLocked(StateClosed)
		}
		return
	}
	if gen != cb.generation || cb.state != StateClosed {
		return
	}
	if !failed {
		cb.streak = 0
		return
	}
	cb.streak++
	if cb.streak >= cb.threshold {
		cb.tripLocked("threshold_exceeded")
	}
}

// currentLocked promotes an open breaker whose cooldown elapsed.
func (cb *CircuitBreaker) currentLocked() State {
	if cb.state == StateOpen && cb.clock.Now().Sub(cb.openedAt) >= cb.cooldown {
		cb.setLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) tripLocked(reason string) {
	metrics.RecordCircuitBreakerTrip(cb.name, reason)
	cb.openedAt = cb.clock.Now()
	cb.setLocked(StateOpen)
}

func (cb *CircuitBreaker) setLocked(s State) {
	if s != StateHalfOpen {
		cb.generation++
		cb.streak = 0
	}
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.SetCircuitBreakerState(cb.name, string(s))
}

// State reports the breaker position, promoting to half-open when the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}
