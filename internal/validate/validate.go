// SPDX-License-Identifier: MIT

// Package validate collects every problem in a configuration so an
// operator fixes a bad file in one pass instead of one restart per typo.
package validate

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error is a single rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string { return e.Field + ": " + e.Message }

// ValidationError is returned by Validator.Err when at least one check failed.
type ValidationError struct {
	errs []Error
}

// Errors lists the failed checks in the order they ran.
func (e ValidationError) Errors() []Error { return e.errs }

func (e ValidationError) Error() string {
	parts := make([]string, len(e.errs))
	for i, fe := range e.errs {
		parts[i] = fe.Error()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validator accumulates failures. The zero value is ready to use.
type Validator struct {
	errs []Error
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) addf(field string, value any, format string, args ...any) {
	v.AddError(field, fmt.Sprintf(format, args...), value)
}

func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

// Errors returns the failures recorded so far.
func (v *Validator) Errors() []Error { return v.errs }

// Err returns nil or a ValidationError holding a copy of the failures.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationError{errs: slices.Clone(v.errs)}
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "must not be empty", value)
	}
}

// OneOf is case-sensitive.
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.addf(field, value, "must be one of %s, got %q", strings.Join(allowed, "|"), value)
	}
}

// Range checks lo <= n <= hi.
func (v *Validator) Range(field string, n, lo, hi int) {
	if n < lo || n > hi {
		v.addf(field, n, "must be within [%d, %d], got %d", lo, hi, n)
	}
}

func (v *Validator) Positive(field string, n int) {
	if n <= 0 {
		v.addf(field, n, "must be positive, got %d", n)
	}
}

// DurationRange checks lo <= d <= hi.
func (v *Validator) DurationRange(field string, d, lo, hi time.Duration) {
	if d < lo || d > hi {
		v.addf(field, d, "must be within [%s, %s], got %s", lo, hi, d)
	}
}

// Fraction checks 0 <= f <= 1.
func (v *Validator) Fraction(field string, f float64) {
	if f < 0 || f > 1 {
		v.addf(field, f, "must be within [0, 1], got %g", f)
	}
}

// ListenAddr accepts host:port with a numeric port. An empty host binds
// every interface.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.addf(field, addr, "invalid listen address: %v", err)
		return
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		v.addf(field, addr, "invalid port %q", port)
	}
}
