// SPDX-License-Identifier: MIT

package daemon

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

var (
	ErrMissingLogger     = errors.New("daemon: logger is required")
	ErrMissingAPIHandler = errors.New("daemon: API handler is required")
	ErrMissingManager    = errors.New("daemon: manager is required")
	ErrManagerNotStarted = errors.New("daemon: manager not started")
	ErrAlreadyStarted    = errors.New("daemon: manager already started")
)

// Deps is what a Manager serves. APIHandler carries the door API and
// health probes; /metrics moves to MetricsAddr when both metrics fields
// are set.
type Deps struct {
	Logger         zerolog.Logger
	APIHandler     http.Handler
	MetricsHandler http.Handler
	MetricsAddr    string
}

// Validate rejects a disabled logger (the zero value) and a missing API
// handler.
func (d Deps) Validate() error {
	switch {
	case d.Logger.GetLevel() == zerolog.Disabled:
		return ErrMissingLogger
	case d.APIHandler == nil:
		return ErrMissingAPIHandler
	}
	return nil
}

func (d Deps) separateMetrics() bool {
	return d.MetricsHandler != nil && d.MetricsAddr != ""
}
