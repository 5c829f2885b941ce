// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldAttemptID = "attempt_id"
	FieldTicketID  = "ticket_id"
	FieldEventID   = "event_id"
	FieldTargetID  = "target_event_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldDoor      = "door"
	FieldSource    = "source"
	FieldMode      = "mode"
	FieldDevice    = "device"

	// Outcome fields
	FieldOutcome  = "outcome"
	FieldFailure  = "failure"
	FieldDuration = "duration_ms"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
