// SPDX-License-Identifier: MIT

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys for check-in traces.
const (
	CheckInAttemptKey = "checkin.attempt_id"
	CheckInTicketKey  = "checkin.ticket_id"
	CheckInEventKey   = "checkin.event_id"
	CheckInSourceKey  = "checkin.source"
	CheckInOutcomeKey = "checkin.outcome"
	MutatorResultKey  = "mutator.result"
)

// CheckInAttributes describes a verification attempt. Empty values are
// omitted so early rejections carry only what is known.
func CheckInAttributes(attemptID, ticketID, eventID, source string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, kv := range [...]struct{ key, val string }{
		{CheckInAttemptKey, attemptID},
		{CheckInTicketKey, ticketID},
		{CheckInEventKey, eventID},
		{CheckInSourceKey, source},
	} {
		if kv.val != "" {
			attrs = append(attrs, attribute.String(kv.key, kv.val))
		}
	}
	return attrs
}

// OutcomeAttributes tags the terminal outcome and, when the ticket reached
// the mutator, its result.
func OutcomeAttributes(outcome, mutatorResult string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(CheckInOutcomeKey, outcome)}
	if mutatorResult != "" {
		attrs = append(attrs, attribute.String(MutatorResultKey, mutatorResult))
	}
	return attrs
}
