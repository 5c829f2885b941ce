// SPDX-License-Identifier: MIT

// Package ticketid normalises scanned or typed payloads into canonical
// ticket identifiers and rejects anything that cannot be one.
package ticketid

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// MinLength is the shortest identifier accepted by Validate.
	MinLength = 5
	// MaxLength is the longest identifier; Sanitize truncates to it.
	MaxLength = 50

	schemePrefix = "TICKET:"
)

var (
	ErrEmpty    = errors.New("identifier is empty")
	ErrTooShort = errors.New("identifier is too short")
	ErrTooLong  = errors.New("identifier is too long")
	ErrCharset  = errors.New("identifier contains invalid characters")
)

// ValidationError carries the rejected identifier and the rule it broke.
type ValidationError struct {
	Identifier string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid ticket identifier %q: %v", e.Identifier, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Reason string
}

// Sanitize unwraps known payload envelopes, folds compatibility
// characters, uppercases, drops everything outside [A-Z0-9-] and
// truncates to MaxLength. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	s = unwrap(s)
	s = strings.ToUpper(s)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if allowed(c) {
			b.WriteByte(c)
			if b.Len() == MaxLength {
				break
			}
		}
	}
	return b.String()
}

// Validate applies the identifier rules to an already sanitized value.
func Validate(id string) Result {
	if err := validate(id); err != nil {
		return Result{Valid: false, Reason: err.Error()}
	}
	return Result{Valid: true}
}

// Check sanitizes raw and validates the result.
func Check(raw string) (string, error) {
	id := Sanitize(raw)
	if err := validate(id); err != nil {
		return id, &ValidationError{Identifier: id, Err: err}
	}
	return id, nil
}

func validate(id string) error {
	switch {
	case id == "":
		return ErrEmpty
	case len(id) < MinLength:
		return ErrTooShort
	case len(id) > MaxLength:
		return ErrTooLong
	}
	for i := 0; i < len(id); i++ {
		if !allowed(id[i]) {
			return ErrCharset
		}
	}
	return nil
}

func allowed(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-'
}

// unwrap strips the TICKET: scheme and pulls the identifier out of URL
// payloads (?t=, ?ticket= or the last path segment).
func unwrap(s string) string {
	if len(s) >= len(schemePrefix) && strings.EqualFold(s[:len(schemePrefix)], schemePrefix) {
		return strings.TrimSpace(s[len(schemePrefix):])
	}
	if !strings.Contains(s, "://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	q := u.Query()
	for _, k := range []string{"t", "ticket"} {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segments[len(segments)-1]; last != "" {
		return last
	}
	return s
}
