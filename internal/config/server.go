// SPDX-License-Identifier: MIT

package config

import (
	"strings"
	"time"
)

// ServerConfig is the resolved listener configuration handed to the
// daemon manager.
type ServerConfig = ServerSection

const (
	defaultListenAddr      = ":8088"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 2 * time.Minute
	defaultMaxHeaderBytes  = 1 << 20
	defaultShutdownTimeout = 15 * time.Second
	// Below this the camera and store hooks cannot finish in time.
	minShutdownTimeout = 3 * time.Second
)

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// ParseServerConfig fills unset server fields and applies the
// TURNSTILE_SERVER_* overrides. TURNSTILE_LISTEN is re-read so tooling
// that builds an AppConfig by hand still honours it.
func ParseServerConfig(cfg AppConfig) ServerConfig {
	s := cfg.Server
	env := func(name string) string { return EnvPrefix + "SERVER_" + name }

	s.ListenAddr = strings.TrimSpace(ParseString(EnvPrefix+"LISTEN", s.ListenAddr))
	if s.ListenAddr == "" {
		s.ListenAddr = defaultListenAddr
	}
	s.ReadTimeout = ParseDuration(env("READ_TIMEOUT"), orDuration(s.ReadTimeout, defaultReadTimeout))
	// A zero write timeout is legal (no limit); only negatives are reset.
	if s.WriteTimeout < 0 {
		s.WriteTimeout = defaultWriteTimeout
	}
	s.WriteTimeout = ParseDuration(env("WRITE_TIMEOUT"), s.WriteTimeout)
	s.IdleTimeout = ParseDuration(env("IDLE_TIMEOUT"), orDuration(s.IdleTimeout, defaultIdleTimeout))

	if s.MaxHeaderBytes <= 0 {
		s.MaxHeaderBytes = defaultMaxHeaderBytes
	}
	if n := ParseInt(env("MAX_HEADER_BYTES"), s.MaxHeaderBytes); n > 0 {
		s.MaxHeaderBytes = n
	}

	s.ShutdownTimeout = ParseDuration(env("SHUTDOWN_TIMEOUT"), orDuration(s.ShutdownTimeout, defaultShutdownTimeout))
	s.ShutdownTimeout = max(s.ShutdownTimeout, minShutdownTimeout)
	return s
}
