// SPDX-License-Identifier: MIT

// Package fsm is a small strict state machine shared by the camera
// session and the verification engine. Edges are declared up front and
// any event without an edge from the current state is refused.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("invalid transition")

// Transition is one edge of the table.
type Transition[S, E ~string] struct {
	From  S
	Event E
	To    S
}

// Observer is called after each applied transition, outside the lock.
type Observer[S, E ~string] func(from, to S, event E)

// Machine holds the current state. It is safe for concurrent use.
type Machine[S, E ~string] struct {
	edges map[S]map[E]S

	mu       sync.Mutex
	state    S
	observer Observer[S, E]
}

// New builds a Machine starting in initial. Two edges leaving the same
// state on the same event are an error.
func New[S, E ~string](initial S, table []Transition[S, E]) (*Machine[S, E], error) {
	edges := make(map[S]map[E]S)
	for _, t := range table {
		out, ok := edges[t.From]
		if !ok {
			out = make(map[E]S)
			edges[t.From] = out
		}
		if prev, dup := out[t.Event]; dup {
			return nil, fmt.Errorf("fsm: %s on %s already leads to %s", t.From, t.Event, prev)
		}
		out[t.Event] = t.To
	}
	return &Machine[S, E]{edges: edges, state: initial}, nil
}

// MustNew is New for static tables.
func MustNew[S, E ~string](initial S, table []Transition[S, E]) *Machine[S, E] {
	m, err := New(initial, table)
	if err != nil {
		panic(err)
	}
	return m
}

// Observe replaces the transition observer.
func (m *Machine[S, E]) Observe(o Observer[S, E]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event has an edge from the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.edges[m.state][event]
	return ok
}

// Fire applies event and returns the resulting state. On refusal the
// state is unchanged and the current state is returned with the error.
// ctx is reserved for cancellation-aware observers.
func (m *Machine[S, E]) Fire(_ context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	to, ok := m.edges[from][event]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, event)
	}
	m.state = to
	obs := m.observer
	m.mu.Unlock()

	if obs != nil {
		obs(from, to, event)
	}
	return to, nil
}
