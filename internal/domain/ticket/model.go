// SPDX-License-Identifier: MIT

// Package ticket holds the records the check-in engine reads and the
// attempts it produces.
package ticket

import "time"

// Ticket is owned by the external store and read-only to the engine.
// Used implies CheckedInAt is set; the directory enforces this on load.
type Ticket struct {
	ID          string     `json:"id" yaml:"id"`
	EventID     string     `json:"eventId" yaml:"eventId"`
	HolderName  string     `json:"holderName,omitempty" yaml:"holderName,omitempty"`
	Tier        string     `json:"tier,omitempty" yaml:"tier,omitempty"`
	Used        bool       `json:"used" yaml:"used"`
	CheckedInAt *time.Time `json:"checkInTime,omitempty" yaml:"checkInTime,omitempty"`
}

// Event is used for display and for the wrong-event rule.
type Event struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Date     time.Time `json:"date" yaml:"date"`
	Location string    `json:"location,omitempty" yaml:"location,omitempty"`
}

// MarkUsed returns a copy of t flagged as checked in at the given time.
func (t Ticket) MarkUsed(at time.Time) Ticket {
	at = at.UTC()
	t.Used = true
	t.CheckedInAt = &at
	return t
}

// Source names the input path an attempt came from.
type Source string

const (
	SourceCamera Source = "camera"
	SourceManual Source = "manual"
)

// Attempt is one processed scan. It is a value; copies handed out by the
// ledger cannot affect each other.
type Attempt struct {
	ID         string    `json:"id"`
	Raw        string    `json:"raw"`
	Identifier string    `json:"identifier,omitempty"`
	Source     Source    `json:"source"`
	At         time.Time `json:"at"`
	Ticket     *Ticket   `json:"ticket,omitempty"`
	Event      *Event    `json:"event,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Message    string    `json:"message"`
}

// Clone returns a copy of a that shares no pointers with it.
func (a Attempt) Clone() Attempt {
	if a.Ticket != nil {
		t := *a.Ticket
		if t.CheckedInAt != nil {
			at := *t.CheckedInAt
			t.CheckedInAt = &at
		}
		a.Ticket = &t
	}
	if a.Event != nil {
		ev := *a.Event
		a.Event = &ev
	}
	return a
}
