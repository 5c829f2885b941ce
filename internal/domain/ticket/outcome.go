// SPDX-License-Identifier: MIT

package ticket

// Outcome is the terminal result of a verification cycle.
type Outcome string

const (
	OutcomeSuccess       Outcome = "SUCCESS"
	OutcomeAlreadyUsed   Outcome = "ALREADY_USED"
	OutcomeWrongEvent    Outcome = "WRONG_EVENT"
	OutcomeNotFound      Outcome = "NOT_FOUND"
	OutcomeInvalidFormat Outcome = "INVALID_FORMAT"
	OutcomeVerifyFailed  Outcome = "VERIFY_FAILED"
	OutcomeTimeout       Outcome = "TIMEOUT"
)

// Outcomes lists every terminal outcome in a stable order.
var Outcomes = []Outcome{
	OutcomeSuccess,
	OutcomeAlreadyUsed,
	OutcomeWrongEvent,
	OutcomeNotFound,
	OutcomeInvalidFormat,
	OutcomeVerifyFailed,
	OutcomeTimeout,
}

// Class groups outcomes by who has to act on them.
type Class string

const (
	ClassAdmitted     Class = "admitted"
	ClassInputError   Class = "input_error"
	ClassBusinessRule Class = "business_rule"
	ClassBackendError Class = "backend_error"
)

// Tone is the colour family a UI should render an outcome in.
type Tone string

const (
	ToneGreen Tone = "green"
	ToneAmber Tone = "amber"
	ToneRed   Tone = "red"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Class returns the error class of o.
func (o Outcome) Class() Class {
	switch o {
	case OutcomeSuccess:
		return ClassAdmitted
	case OutcomeAlreadyUsed:
		return ClassBusinessRule
	case OutcomeVerifyFailed, OutcomeTimeout:
		return ClassBackendError
	default:
		return ClassInputError
	}
}

// Tone returns green for admitted, amber for duplicates and red otherwise.
func (o Outcome) Tone() Tone {
	switch o {
	case OutcomeSuccess:
		return ToneGreen
	case OutcomeAlreadyUsed:
		return ToneAmber
	default:
		return ToneRed
	}
}

// Admitted reports whether the holder may pass.
func (o Outcome) Admitted() bool { return o == OutcomeSuccess }

// Retryable reports whether rescanning the same ticket can change the result.
func (o Outcome) Retryable() bool { return o.Class() == ClassBackendError }

// Headline is the short title shown above the message.
func (o Outcome) Headline() string {
	switch o {
	case OutcomeSuccess:
		return "Checked in"
	case OutcomeAlreadyUsed:
		return "Already used"
	case OutcomeWrongEvent:
		return "Wrong event"
	case OutcomeNotFound:
		return "Ticket not found"
	case OutcomeInvalidFormat:
		return "Invalid code"
	case OutcomeVerifyFailed:
		return "Check-in failed"
	case OutcomeTimeout:
		return "No response"
	default:
		return string(o)
	}
}
