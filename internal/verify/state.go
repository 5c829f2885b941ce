// SPDX-License-Identifier: MIT

package verify

import (
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	"github.com/ManuGH/turnstile/internal/fsm"
)

// State is the engine state: IDLE, VERIFYING or one terminal outcome.
type State string

const (
	StateIdle      State = "IDLE"
	StateVerifying State = "VERIFYING"
)

// Terminal reports whether s displays a result.
func (s State) Terminal() bool { return ticket.Outcome(s).Valid() }

// Outcome returns the outcome a terminal state displays.
func (s State) Outcome() (ticket.Outcome, bool) {
	o := ticket.Outcome(s)
	return o, o.Valid()
}

type event string

const (
	evScan  event = "scan"
	evReset event = "reset"
)

func outcomeEvent(o ticket.Outcome) event { return event("resolve:" + string(o)) }

func transitions() []fsm.Transition[State, event] {
	t := []fsm.Transition[State, event]{
		{From: StateIdle, Event: evScan, To: StateVerifying},
	}
	for _, o := range ticket.Outcomes {
		t = append(t,
			fsm.Transition[State, event]{From: StateVerifying, Event: outcomeEvent(o), To: State(o)},
			fsm.Transition[State, event]{From: State(o), Event: evReset, To: StateIdle},
		)
	}
	return t
}
