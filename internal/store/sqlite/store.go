// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/domain/ticket"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/verify"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	title    TEXT NOT NULL DEFAULT '',
	date     TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS tickets (
	id            TEXT PRIMARY KEY,
	event_id      TEXT NOT NULL,
	holder_name   TEXT NOT NULL DEFAULT '',
	tier          TEXT NOT NULL DEFAULT '',
	used          INTEGER NOT NULL DEFAULT 0,
	checked_in_at TEXT,
	CHECK (used = 0 OR checked_in_at IS NOT NULL)
);
CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets(event_id);
CREATE TABLE IF NOT EXISTS checkins (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id TEXT NOT NULL,
	door      TEXT NOT NULL,
	at        TEXT NOT NULL,
	result    TEXT NOT NULL
);
`

// Audit results written to the checkins table.
const (
	ResultAdmitted  = "admitted"
	ResultDuplicate = "duplicate"
	ResultUnknown   = "unknown"
)

// ErrUsedWithoutTime rejects imported tickets that are used but carry
// no check-in time.
var ErrUsedWithoutTime = errors.New("used ticket without check-in time")

// Store owns the schema on top of an open *sql.DB.
type Store struct {
	db     *sql.DB
	door   string
	clk    clock.Clock
	logger zerolog.Logger
}

// New applies the schema and returns a store. door names this terminal
// in the audit trail.
func New(ctx context.Context, db *sql.DB, door string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if door == "" {
		door = "door"
	}
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db, door: door, clk: clk, logger: xglog.WithComponent("store")}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("sqlite: set schema version: %w", err)
	}
	return tx.Commit()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// CheckIn implements verify.Mutator. The conditional update makes the
// store the arbiter when several doors race on one ticket: exactly one
// of them sees a row change.
func (s *Store) CheckIn(ctx context.Context, ticketID string) (verify.Result, error) {
	now := s.clk.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verify.Result{}, fmt.Errorf("sqlite: begin check-in: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET used = 1, checked_in_at = ? WHERE id = ? AND used = 0`,
		formatTime(now), ticketID)
	if err != nil {
		return verify.Result{}, fmt.Errorf("sqlite: mark used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return verify.Result{}, fmt.Errorf("sqlite: rows affected: %w", err)
	}

	out := verify.Result{Success: true}
	audit := ResultAdmitted
	if n == 0 {
		var at sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT checked_in_at FROM tickets WHERE id = ?`, ticketID).Scan(&at)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			audit = ResultUnknown
			out = verify.Result{Message: "ticket is not known to the check-in service"}
		case err != nil:
			return verify.Result{}, fmt.Errorf("sqlite: load ticket: %w", err)
		default:
			audit = ResultDuplicate
			out = verify.Result{Message: "ticket was already checked in"}
			if t, perr := parseTime(at.String); perr == nil && !t.IsZero() {
				out.Message = fmt.Sprintf("ticket was already checked in at %s", t.Format(time.RFC3339))
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkins (ticket_id, door, at, result) VALUES (?, ?, ?, ?)`,
		ticketID, s.door, formatTime(now), audit); err != nil {
		return verify.Result{}, fmt.Errorf("sqlite: audit check-in: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return verify.Result{}, fmt.Errorf("sqlite: commit check-in: %w", err)
	}

	s.logger.Debug().
		Str(xglog.FieldEvent, "store.checkin").
		Str(xglog.FieldTicketID, ticketID).
		Str("result", audit).
		Msg("check-in recorded")
	return out, nil
}

// Import upserts d in one transaction. Local check-ins are never undone
// by an import: a used row stays used.
func (s *Store) Import(ctx context.Context, d directory.Data) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range d.Events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (id, title, date, location) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title, date = excluded.date, location = excluded.location`,
			ev.ID, ev.Title, formatTime(ev.Date), ev.Location); err != nil {
			return fmt.Errorf("sqlite: import event %s: %w", ev.ID, err)
		}
	}
	for _, t := range d.Tickets {
		if t.Used && t.CheckedInAt == nil {
			return fmt.Errorf("sqlite: import ticket %s: %w", t.ID, ErrUsedWithoutTime)
		}
		var at any
		if t.CheckedInAt != nil {
			at = formatTime(*t.CheckedInAt)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO tickets (id, event_id, holder_name, tier, used, checked_in_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	event_id = excluded.event_id,
	holder_name = excluded.holder_name,
	tier = excluded.tier,
	used = MAX(tickets.used, excluded.used),
	checked_in_at = COALESCE(tickets.checked_in_at, excluded.checked_in_at)`,
			t.ID, t.EventID, t.HolderName, t.Tier, boolInt(t.Used), at); err != nil {
			return fmt.Errorf("sqlite: import ticket %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit import: %w", err)
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "store.imported").
		Int("events", len(d.Events)).
		Int("tickets", len(d.Tickets)).
		Msg("snapshot imported")
	return nil
}

// LoadSnapshot reads every event and ticket.
func (s *Store) LoadSnapshot(ctx context.Context) (directory.Data, error) {
	var d directory.Data

	rows, err := s.db.QueryContext(ctx, `SELECT id, title, date, location FROM events ORDER BY id`)
	if err != nil {
		return d, fmt.Errorf("sqlite: query events: %w", err)
	}
	for rows.Next() {
		var ev ticket.Event
		var date string
		if err := rows.Scan(&ev.ID, &ev.Title, &date, &ev.Location); err != nil {
			_ = rows.Close()
			return d, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if ev.Date, err = parseTime(date); err != nil {
			_ = rows.Close()
			return d, fmt.Errorf("sqlite: event %s date: %w", ev.ID, err)
		}
		d.Events = append(d.Events, ev)
	}
	if err := closeRows(rows); err != nil {
		return d, fmt.Errorf("sqlite: events: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, event_id, holder_name, tier, used, checked_in_at FROM tickets ORDER BY id`)
	if err != nil {
		return d, fmt.Errorf("sqlite: query tickets: %w", err)
	}
	for rows.Next() {
		var t ticket.Ticket
		var used int
		var at sql.NullString
		if err := rows.Scan(&t.ID, &t.EventID, &t.HolderName, &t.Tier, &used, &at); err != nil {
			_ = rows.Close()
			return d, fmt.Errorf("sqlite: scan ticket: %w", err)
		}
		t.Used = used != 0
		if at.Valid && at.String != "" {
			ts, err := parseTime(at.String)
			if err != nil {
				_ = rows.Close()
				return d, fmt.Errorf("sqlite: ticket %s check-in time: %w", t.ID, err)
			}
			t.CheckedInAt = &ts
		}
		d.Tickets = append(d.Tickets, t)
	}
	if err := closeRows(rows); err != nil {
		return d, fmt.Errorf("sqlite: tickets: %w", err)
	}
	return d, nil
}

// Audit returns the number of audit rows per result for ticketID.
func (s *Store) Audit(ctx context.Context, ticketID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT result, COUNT(*) FROM checkins WHERE ticket_id = ? GROUP BY result`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit: %w", err)
	}
	out := map[string]int{}
	for rows.Next() {
		var result string
		var n int
		if err := rows.Scan(&result, &n); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("sqlite: scan audit: %w", err)
		}
		out[result] = n
	}
	return out, closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
