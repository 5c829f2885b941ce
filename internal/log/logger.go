// SPDX-License-Identifier: MIT

package log

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process-wide logger. Zero fields fall back to
// info level, stdout and the "turnstile" service name.
type Config struct {
	Level   string
	Output  io.Writer
	Service string
	Version string
	// Door is stamped on every line so logs from several entrances can
	// share one sink.
	Door string
}

var base atomic.Pointer[zerolog.Logger]

func init() {
	Configure(Config{})
}

// Configure replaces the process-wide logger. Startup calls it twice:
// once before the config is read and once after.
func Configure(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "turnstile"
	}

	zctx := zerolog.New(out).With().Timestamp().Str("service", service)
	if cfg.Version != "" {
		zctx = zctx.Str("version", cfg.Version)
	}
	if cfg.Door != "" {
		zctx = zctx.Str(FieldDoor, cfg.Door)
	}
	l := zctx.Logger()
	base.Store(&l)
}

// Base returns a copy of the process-wide logger.
func Base() zerolog.Logger { return *base.Load() }

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}
