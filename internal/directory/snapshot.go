// SPDX-License-Identifier: MIT

// Package directory is the engine's read-through cache of ticket and
// event records. The authoritative copy lives behind the mutator; a
// Snapshot is replaced wholesale on reload and patched by MarkUsed after
// confirmed check-ins.
package directory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/domain/ticket"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/metrics"
	"github.com/ManuGH/turnstile/internal/ticketid"
)

// Rejection reasons reported by Replace.
const (
	ReasonMissingID       = "missing_id"
	ReasonInvalidID       = "invalid_id"
	ReasonDuplicate       = "duplicate"
	ReasonUsedWithoutTime = "used_without_time"
	ReasonMissingEvent    = "missing_event"
)

// ErrUnknownTicket is returned by MarkUsed for tickets not in the snapshot.
var ErrUnknownTicket = errors.New("directory: unknown ticket")

// Data is the serialisable content of a snapshot.
type Data struct {
	Events  []ticket.Event  `json:"events" yaml:"events"`
	Tickets []ticket.Ticket `json:"tickets" yaml:"tickets"`
}

// Rejection describes one record dropped at the boundary.
type Rejection struct {
	ID     string
	Reason string
}

// Occupancy counts checked-in tickets against the total.
type Occupancy struct {
	CheckedIn int `json:"checkedIn"`
	Total     int `json:"total"`
}

// Snapshot is safe for concurrent use.
type Snapshot struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	tickets map[string]ticket.Ticket
	events  map[string]ticket.Event
	loaded  bool
}

// New returns an empty, not yet loaded snapshot.
func New(logger zerolog.Logger) *Snapshot {
	return &Snapshot{
		logger:  logger.With().Str(xglog.FieldComponent, "directory").Logger(),
		tickets: map[string]ticket.Ticket{},
		events:  map[string]ticket.Event{},
	}
}

// Ticket implements verify.Directory.
func (s *Snapshot) Ticket(id string) (ticket.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok
}

// Event implements verify.Directory.
func (s *Snapshot) Event(id string) (ticket.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	return ev, ok
}

// Loaded reports whether Replace has succeeded at least once.
func (s *Snapshot) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Len returns the number of tickets.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

// Replace swaps in d after dropping every record that breaks the
// directory rules. Events are accepted as given; a ticket whose event is
// unknown is kept but reported.
func (s *Snapshot) Replace(d Data) []Rejection {
	events := make(map[string]ticket.Event, len(d.Events))
	for _, ev := range d.Events {
		if ev.ID == "" {
			continue
		}
		events[ev.ID] = ev
	}

	var rejected []Rejection
	tickets := make(map[string]ticket.Ticket, len(d.Tickets))
	for _, t := range d.Tickets {
		reason := check(t)
		if reason == "" {
			if _, dup := tickets[t.ID]; dup {
				reason = ReasonDuplicate
			}
		}
		if reason != "" {
			rejected = append(rejected, Rejection{ID: t.ID, Reason: reason})
			metrics.IncDirectoryRejected(reason)
			s.logger.Warn().
				Str(xglog.FieldEvent, "directory.record_rejected").
				Str(xglog.FieldTicketID, t.ID).
				Str("reason", reason).
				Msg("ticket record rejected")
			continue
		}
		if _, ok := events[t.EventID]; !ok {
			s.logger.Warn().
				Str(xglog.FieldEvent, "directory.unknown_event").
				Str(xglog.FieldTicketID, t.ID).
				Str(xglog.FieldEventID, t.EventID).
				Msg("ticket references an unknown event")
		}
		tickets[t.ID] = t
	}

	s.mu.Lock()
	s.tickets = tickets
	s.events = events
	s.loaded = true
	s.mu.Unlock()

	metrics.RecordDirectorySize(len(tickets))
	s.logger.Info().
		Str(xglog.FieldEvent, "directory.replaced").
		Int("tickets", len(tickets)).
		Int("events", len(events)).
		Int("rejected", len(rejected)).
		Msg("directory snapshot replaced")
	return rejected
}

func check(t ticket.Ticket) string {
	switch {
	case t.ID == "":
		return ReasonMissingID
	case ticketid.Sanitize(t.ID) != t.ID || !ticketid.Validate(t.ID).Valid:
		return ReasonInvalidID
	case t.EventID == "":
		return ReasonMissingEvent
	case t.Used && t.CheckedInAt == nil:
		return ReasonUsedWithoutTime
	}
	return ""
}

// MarkUsed records a confirmed check-in in the local copy.
func (s *Snapshot) MarkUsed(t ticket.Ticket) error {
	if !t.Used || t.CheckedInAt == nil {
		return fmt.Errorf("directory: mark used %s: %s", t.ID, ReasonUsedWithoutTime)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tickets[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTicket, t.ID)
	}
	if cur.Used {
		return nil
	}
	at := t.CheckedInAt.UTC()
	cur.Used = true
	cur.CheckedInAt = &at
	s.tickets[t.ID] = cur
	return nil
}

// Occupancy counts tickets for eventID, or across all events when
// eventID is empty.
func (s *Snapshot) Occupancy(eventID string) Occupancy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var o Occupancy
	for _, t := range s.tickets {
		if eventID != "" && t.EventID != eventID {
			continue
		}
		o.Total++
		if t.Used {
			o.CheckedIn++
		}
	}
	return o
}

// Export returns the snapshot content ordered by ID.
func (s *Snapshot) Export() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := Data{
		Events:  make([]ticket.Event, 0, len(s.events)),
		Tickets: make([]ticket.Ticket, 0, len(s.tickets)),
	}
	for _, ev := range s.events {
		d.Events = append(d.Events, ev)
	}
	for _, t := range s.tickets {
		d.Tickets = append(d.Tickets, t)
	}
	sort.Slice(d.Events, func(i, j int) bool { return d.Events[i].ID < d.Events[j].ID })
	sort.Slice(d.Tickets, func(i, j int) bool { return d.Tickets[i].ID < d.Tickets[j].ID })
	return d
}
