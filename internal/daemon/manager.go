// SPDX-License-Identifier: MIT

// Package daemon runs the door's HTTP servers and background loops and
// tears them down in order.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/config"
	xglog "github.com/ManuGH/turnstile/internal/log"
)

const (
	defaultListenAddr      = ":8088"
	defaultShutdownTimeout = 15 * time.Second
	failedStartGrace       = 5 * time.Second
	serverFailureGrace     = 30 * time.Second
)

// ShutdownHook releases a resource. Hooks run newest first.
type ShutdownHook func(ctx context.Context) error

// Manager serves the HTTP endpoints until its context ends.
type Manager interface {
	// Start binds every listener, then blocks until ctx is done or a
	// server fails. Either way it shuts down before returning.
	Start(ctx context.Context) error
	// Shutdown stops the servers and runs hooks. Repeat calls are no-ops.
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type listener struct {
	name string
	addr string
	srv  *http.Server
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type manager struct {
	cfg    config.ServerConfig
	deps   Deps
	logger zerolog.Logger

	mu        sync.Mutex
	state     int
	listeners []listener
	hooks     []namedHook
}

const (
	stateIdle = iota
	stateRunning
	stateStopping
)

// NewManager validates deps and prepares (but does not bind) the servers.
func NewManager(cfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	m := &manager{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger(),
	}

	addr := cfg.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	m.listeners = append(m.listeners, listener{name: "api", addr: addr, srv: &http.Server{
		Handler:           deps.APIHandler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout / 2,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}})
	if deps.separateMetrics() {
		m.listeners = append(m.listeners, listener{name: "metrics", addr: deps.MetricsAddr, srv: &http.Server{
			Handler:           deps.MetricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}})
	}
	return m, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != stateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = stateRunning
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.listeners[0].addr).
		Dur("shutdown_timeout", m.cfg.ShutdownTimeout).
		Msg("starting servers")

	failed := make(chan error, len(m.listeners))
	for _, l := range m.listeners {
		// Bind synchronously so an address conflict fails Start itself.
		ln, err := net.Listen("tcp", l.addr)
		if err != nil {
			m.stopWithin(ctx, failedStartGrace)
			return fmt.Errorf("start %s server: listen %s: %w", l.name, l.addr, err)
		}
		go m.serve(l, ln, failed)
	}

	select {
	case err := <-failed:
		m.logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.server_failed").Msg("server failed, shutting down")
		if serr := m.stopWithin(ctx, serverFailureGrace); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str(xglog.FieldEvent, "daemon.shutdown_signal").Msg("shutdown requested")
		return m.stopWithin(ctx, serverFailureGrace)
	}
}

func (m *manager) serve(l listener, ln net.Listener, failed chan<- error) {
	m.logger.Info().Str("server", l.name).Str("addr", ln.Addr().String()).Msg("listening")
	if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		failed <- fmt.Errorf("%s server: %w", l.name, err)
	}
}

func (m *manager) stopWithin(parent context.Context, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d)
	defer cancel()
	return m.Shutdown(ctx)
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateIdle:
		m.mu.Unlock()
		return ErrManagerNotStarted
	case stateStopping:
		m.mu.Unlock()
		return nil
	}
	m.state = stateStopping
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	timeout := m.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	for _, l := range m.listeners {
		if err := l.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", l.name, err))
		}
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		err := h.hook(ctx)
		evt := m.logger.Debug()
		if err != nil {
			evt = m.logger.Error().Err(err)
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		}
		evt.Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook finished")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	m.logger.Info().Msg("servers stopped")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.mu.Unlock()
}
