// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func asMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsString()
	}
	return m
}

func TestCheckInAttributes(t *testing.T) {
	tests := []struct {
		name                                 string
		attemptID, ticketID, eventID, source string
		want                                 map[string]string
	}{
		{
			name: "all fields", attemptID: "a1", ticketID: "ABC-123", eventID: "E1", source: "camera",
			want: map[string]string{
				CheckInAttemptKey: "a1", CheckInTicketKey: "ABC-123",
				CheckInEventKey: "E1", CheckInSourceKey: "camera",
			},
		},
		{
			name: "rejected before lookup", attemptID: "a2", source: "manual",
			want: map[string]string{CheckInAttemptKey: "a2", CheckInSourceKey: "manual"},
		},
		{name: "empty", want: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckInAttributes(tt.attemptID, tt.ticketID, tt.eventID, tt.source)
			assert.Equal(t, tt.want, asMap(got))
		})
	}
}

func TestOutcomeAttributes(t *testing.T) {
	assert.Equal(t, map[string]string{CheckInOutcomeKey: "TIMEOUT"}, asMap(OutcomeAttributes("TIMEOUT", "")))
	assert.Equal(t,
		map[string]string{CheckInOutcomeKey: "SUCCESS", MutatorResultKey: "ok"},
		asMap(OutcomeAttributes("SUCCESS", "ok")))
}
