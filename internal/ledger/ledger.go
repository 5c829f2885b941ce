// SPDX-License-Identifier: MIT

// Package ledger keeps the bounded, most-recent-first scan history shown
// to door operators. It is a convenience view, not the check-in record.
package ledger

import (
	"sync"

	"github.com/ManuGH/turnstile/internal/domain/ticket"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 10

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	capacity int
	entries  []ticket.Attempt // newest first
}

// New returns an empty ledger holding at most capacity attempts.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{capacity: capacity, entries: make([]ticket.Attempt, 0, capacity)}
}

// Record prepends a copy of a and drops the oldest entry once the bound
// is exceeded.
func (l *Ledger) Record(a ticket.Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, ticket.Attempt{})
	}
	copy(l.entries[1:], l.entries[:len(l.entries)-1])
	l.entries[0] = a.Clone()
}

// All returns a deep copy of the history, newest first.
func (l *Ledger) All() []ticket.Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ticket.Attempt, len(l.entries))
	for i, a := range l.entries {
		out[i] = a.Clone()
	}
	return out
}

// Latest returns the most recent attempt, if any.
func (l *Ledger) Latest() (ticket.Attempt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return ticket.Attempt{}, false
	}
	return l.entries[0].Clone(), true
}

// Len returns the number of stored attempts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Capacity returns the bound.
func (l *Ledger) Capacity() int { return l.capacity }
