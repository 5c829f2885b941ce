// SPDX-License-Identifier: MIT

package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		outcome   Outcome
		class     Class
		tone      Tone
		retryable bool
	}{
		{OutcomeSuccess, ClassAdmitted, ToneGreen, false},
		{OutcomeAlreadyUsed, ClassBusinessRule, ToneAmber, false},
		{OutcomeWrongEvent, ClassInputError, ToneRed, false},
		{OutcomeNotFound, ClassInputError, ToneRed, false},
		{OutcomeInvalidFormat, ClassInputError, ToneRed, false},
		{OutcomeVerifyFailed, ClassBackendError, ToneRed, true},
		{OutcomeTimeout, ClassBackendError, ToneRed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.True(t, tt.outcome.Valid())
			assert.Equal(t, tt.class, tt.outcome.Class())
			assert.Equal(t, tt.tone, tt.outcome.Tone())
			assert.Equal(t, tt.retryable, tt.outcome.Retryable())
			assert.NotEmpty(t, tt.outcome.Headline())
		})
	}
	assert.False(t, Outcome("MAYBE").Valid())
}

func TestMarkUsedCopies(t *testing.T) {
	orig := Ticket{ID: "ABC-123", EventID: "E1"}
	at := time.Date(2024, 8, 15, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	used := orig.MarkUsed(at)
	assert.False(t, orig.Used)
	assert.Nil(t, orig.CheckedInAt)
	assert.True(t, used.Used)
	if assert.NotNil(t, used.CheckedInAt) {
		assert.Equal(t, time.UTC, used.CheckedInAt.Location())
		assert.True(t, used.CheckedInAt.Equal(at))
	}
}
