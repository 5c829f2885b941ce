// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/turnstile/internal/log"
)

// Runner is a background loop owned by the App. Run must return when ctx
// is done; a non-nil error stops the daemon.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// App runs the Manager alongside the door's background loops. The first
// loop to fail cancels the rest and takes the servers down.
type App struct {
	logger  zerolog.Logger
	manager Manager
	runners []Runner
}

// NewApp wires the runtime. A non-nil reload becomes an extra runner
// invoked on every SIGHUP.
func NewApp(logger zerolog.Logger, manager Manager, reload func(ctx context.Context) error, runners ...Runner) *App {
	a := &App{logger: logger, manager: manager, runners: runners}
	if reload != nil {
		a.runners = append(a.runners, a.onSignal(syscall.SIGHUP, reload))
	}
	return a
}

// onSignal returns a runner that calls fn on each delivery of sig. fn
// errors are logged, never fatal: a bad directory file must not stop a
// door that is already verifying with the previous snapshot.
func (a *App) onSignal(sig os.Signal, fn func(ctx context.Context) error) Runner {
	return Runner{Name: "signal:" + sig.String(), Run: func(ctx context.Context) error {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sig)
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				a.logger.Info().Str(xglog.FieldEvent, "directory.reload_signal").
					Str("signal", sig.String()).Msg("reloading directory")
				if err := fn(ctx); err != nil {
					a.logger.Warn().Err(err).Str(xglog.FieldEvent, "directory.reload_failed").
						Msg("directory reload failed, keeping previous snapshot")
				}
			}
		}
	}}
}

// Run blocks until ctx is cancelled or something fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		g.Go(func() error {
			err := r.Run(ctx)
			if err != nil {
				a.logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.runner_failed").
					Str("runner", r.Name).Msg("background runner failed")
			}
			return err
		})
	}
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})
	return g.Wait()
}
