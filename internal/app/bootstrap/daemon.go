// SPDX-License-Identifier: MIT

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/turnstile/internal/api"
	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/daemon"
	xglog "github.com/ManuGH/turnstile/internal/log"
)

// Daemon is a wired door daemon ready to Run.
type Daemon struct {
	Container *Container
	Server    *api.Server
	Manager   daemon.Manager
	App       *daemon.App
}

// WireDaemon builds the container, the HTTP surface and the lifecycle
// around it.
func WireDaemon(ctx context.Context, cfg config.AppConfig, opts Options) (*Daemon, error) {
	c, err := Build(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	separateMetrics := cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != ""
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = ServiceName
	}
	srv := api.New(api.Config{
		Token:             cfg.API.Token,
		ServeMetrics:      cfg.Metrics.Enabled && !separateMetrics,
		TracingService:    tracing,
		RateLimit:         cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	}, c.Scanner, c.Health)

	deps := daemon.Deps{
		Logger:     xglog.WithComponent("daemon"),
		APIHandler: srv.Handler(),
	}
	if separateMetrics {
		deps.MetricsHandler = api.MetricsHandler()
		deps.MetricsAddr = cfg.Metrics.ListenAddr
	}
	mgr, err := daemon.NewManager(config.ParseServerConfig(cfg), deps)
	if err != nil {
		_ = c.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("daemon manager: %w", err)
	}
	c.RegisterHooks(mgr)

	var runners []daemon.Runner
	if c.Watcher != nil && cfg.Directory.Watch {
		runners = append(runners, daemon.Runner{Name: "directory-watcher", Run: c.Watcher.Run})
	}

	return &Daemon{
		Container: c,
		Server:    srv,
		Manager:   mgr,
		App:       daemon.NewApp(xglog.WithComponent("app"), mgr, c.ReloadDirectory, runners...),
	}, nil
}

// Run activates the input mode and blocks until ctx is done. A camera that
// cannot start is reported and left on the banner; the door still serves
// manual entry.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Container.Scanner.Start(ctx); err != nil {
		var failure *camera.Failure
		if !errors.As(err, &failure) {
			_ = d.Container.Close(context.WithoutCancel(ctx))
			return err
		}
		d.Container.Logger.Warn().Err(err).
			Str(xglog.FieldEvent, "camera.start_failed").
			Str(xglog.FieldFailure, string(failure.Kind)).
			Msg("camera unavailable, manual entry remains")
	}
	return d.App.Run(ctx)
}
