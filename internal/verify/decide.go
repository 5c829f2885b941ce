// SPDX-License-Identifier: MIT

package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/turnstile/internal/domain/ticket"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/metrics"
	"github.com/ManuGH/turnstile/internal/telemetry"
	"github.com/ManuGH/turnstile/internal/ticketid"
)

const checkInTimeLayout = "Jan 2, 2006 at 15:04 MST"

// decide applies the rules in order and fills in the outcome. It returns
// the mutator result label, empty when the mutator was not called.
func (e *Engine) decide(ctx context.Context, a *ticket.Attempt) string {
	id, err := ticketid.Check(a.Raw)
	a.Identifier = id
	if err != nil {
		a.Outcome = ticket.OutcomeInvalidFormat
		a.Message = invalidMessage(err)
		return ""
	}

	t, ok := e.dir.Ticket(id)
	if !ok {
		a.Outcome = ticket.OutcomeNotFound
		a.Message = fmt.Sprintf("No ticket found for %s.", id)
		return ""
	}
	snapshot := t
	a.Ticket = &snapshot
	if ev, ok := e.dir.Event(t.EventID); ok {
		a.Event = &ev
	}

	if target := e.cfg.TargetEventID; target != "" && t.EventID != target {
		a.Outcome = ticket.OutcomeWrongEvent
		a.Message = fmt.Sprintf("Ticket %s is for %s, not this event.", id, eventLabel(a.Event, t.EventID))
		return ""
	}

	if t.Used {
		a.Outcome = ticket.OutcomeAlreadyUsed
		if t.CheckedInAt != nil {
			a.Message = fmt.Sprintf("Ticket %s was already checked in on %s.", id,
				t.CheckedInAt.In(e.cfg.Location).Format(checkInTimeLayout))
		} else {
			a.Message = fmt.Sprintf("Ticket %s has already been used.", id)
		}
		return ""
	}

	return e.mutate(ctx, a, t)
}

type reply struct {
	res Result
	err error
}

// mutate calls the mutator exactly once and waits for its answer or the
// timeout, whichever comes first. A late answer is handled by the call
// goroutine itself.
func (e *Engine) mutate(ctx context.Context, a *ticket.Attempt, t ticket.Ticket) string {
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(e.base, cancel)
	mctx, span := e.tracer.Start(mctx, "checkin.mutate",
		trace.WithAttributes(telemetry.CheckInAttributes(a.ID, t.ID, t.EventID, string(a.Source))...))

	var settled atomic.Bool
	answer := make(chan reply, 1)
	started := e.clk.Now()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer stop()
		defer cancel()
		defer span.End()

		r := e.call(mctx, t.ID)
		label := resultLabel(r)
		metrics.ObserveMutator(label, e.clk.Now().Sub(started))
		span.SetAttributes(attribute.String(telemetry.MutatorResultKey, label))
		if r.err != nil {
			span.RecordError(r.err)
			span.SetStatus(codes.Error, r.err.Error())
		}

		if settled.CompareAndSwap(false, true) {
			answer <- r
			return
		}
		e.late(a.ID, t, r)
	}()

	var r reply
	select {
	case r = <-answer:
	case <-e.clk.After(e.cfg.Timeout):
		if settled.CompareAndSwap(false, true) {
			a.Outcome = ticket.OutcomeTimeout
			a.Message = fmt.Sprintf("No response from the check-in service within %s. Scan the ticket again to retry.", e.cfg.Timeout)
			return "timeout"
		}
		r = <-answer
	case <-e.base.Done():
		if settled.CompareAndSwap(false, true) {
			a.Outcome = ticket.OutcomeVerifyFailed
			a.Message = "Check-in interrupted by shutdown. Scan the ticket again to retry."
			return "canceled"
		}
		r = <-answer
	}

	label := resultLabel(r)
	switch {
	case r.err != nil:
		a.Outcome = ticket.OutcomeVerifyFailed
		a.Message = "Check-in failed: " + r.err.Error()
	case !r.res.Success:
		a.Outcome = ticket.OutcomeVerifyFailed
		a.Message = "Check-in failed: " + rejectionMessage(r.res.Message)
	default:
		used := t.MarkUsed(e.clk.Now())
		a.Ticket = &used
		a.Outcome = ticket.OutcomeSuccess
		a.Message = successMessage(t, r.res.Message)
		e.checkedIn(used)
	}
	return label
}

// call runs the mutator and converts panics into errors.
func (e *Engine) call(ctx context.Context, id string) (r reply) {
	defer func() {
		if p := recover(); p != nil {
			r = reply{err: fmt.Errorf("mutator panic: %v", p)}
		}
	}()
	res, err := e.mut.CheckIn(ctx, id)
	return reply{res: res, err: err}
}

// late handles an answer that arrived after the attempt was already
// recorded as TIMEOUT. A success is still applied locally so a rescan
// reports the ticket as used.
func (e *Engine) late(attemptID string, t ticket.Ticket, r reply) {
	label := resultLabel(r)
	metrics.IncLateMutatorResult(label)
	ev := e.logger.Warn().
		Str(xglog.FieldEvent, "verify.late_result").
		Str(xglog.FieldAttemptID, attemptID).
		Str(xglog.FieldTicketID, t.ID).
		Str("result", label)
	if r.err != nil {
		ev = ev.Err(r.err)
	}
	ev.Msg("mutator answered after timeout")

	if r.err == nil && r.res.Success {
		e.checkedIn(t.MarkUsed(e.clk.Now()))
	}
}

func resultLabel(r reply) string {
	switch {
	case r.err != nil && errors.Is(r.err, context.Canceled):
		return "canceled"
	case r.err != nil:
		return "error"
	case r.res.Success:
		return "ok"
	default:
		return "rejected"
	}
}

func invalidMessage(err error) string {
	switch {
	case errors.Is(err, ticketid.ErrEmpty):
		return "The code is empty. Scan or type a ticket code."
	case errors.Is(err, ticketid.ErrTooShort):
		return fmt.Sprintf("The code is too short to be a ticket (at least %d characters).", ticketid.MinLength)
	case errors.Is(err, ticketid.ErrTooLong):
		return fmt.Sprintf("The code is too long to be a ticket (at most %d characters).", ticketid.MaxLength)
	default:
		return "The code contains characters a ticket cannot have."
	}
}

func rejectionMessage(msg string) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return "the check-in service rejected the ticket."
}

func successMessage(t ticket.Ticket, msg string) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	if t.HolderName != "" {
		return fmt.Sprintf("Welcome, %s.", t.HolderName)
	}
	return fmt.Sprintf("Ticket %s checked in.", t.ID)
}

func eventLabel(ev *ticket.Event, id string) string {
	if ev != nil && ev.Title != "" {
		return ev.Title
	}
	return "event " + id
}
