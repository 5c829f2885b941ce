// SPDX-License-Identifier: MIT

// Package bootstrap is the composition root shared by the door daemon and
// the door console.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/turnstile/internal/audio"
	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/camera/stub"
	"github.com/ManuGH/turnstile/internal/camera/v4l2"
	"github.com/ManuGH/turnstile/internal/clock"
	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/daemon"
	"github.com/ManuGH/turnstile/internal/directory"
	"github.com/ManuGH/turnstile/internal/health"
	"github.com/ManuGH/turnstile/internal/ledger"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/mutator"
	"github.com/ManuGH/turnstile/internal/resilience"
	"github.com/ManuGH/turnstile/internal/scanner"
	sqlitestore "github.com/ManuGH/turnstile/internal/store/sqlite"
	"github.com/ManuGH/turnstile/internal/telemetry"
	"github.com/ManuGH/turnstile/internal/verify"
)

// ServiceName names the process in logs and traces.
const ServiceName = "turnstile"

// Options tweak Build for tests and the console.
type Options struct {
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Device overrides the configured camera driver.
	Device camera.Device
	// Player overrides the configured audio output.
	Player audio.Player
	// SkipStartupChecks disables the filesystem and binary probes.
	SkipStartupChecks bool
}

// Container holds the wired door.
type Container struct {
	Config    config.AppConfig
	Logger    zerolog.Logger
	Clock     clock.Clock
	Telemetry *telemetry.Provider
	Store     *sqlitestore.Store
	Directory *directory.Snapshot
	Watcher   *directory.Watcher
	Mutator   verify.Mutator
	Remote    *mutator.Remote
	Lease     *mutator.LeaseGuard
	Device    camera.Device
	Player    audio.Player
	Scanner   *scanner.Orchestrator
	Health    *health.Manager

	closers   []namedCloser
	closeOnce sync.Once
	closeErr  error
}

type namedCloser struct {
	name string
	fn   func(ctx context.Context) error
}

func (c *Container) onClose(name string, fn func(ctx context.Context) error) {
	c.closers = append(c.closers, namedCloser{name: name, fn: fn})
}

// LoadConfig reads the configuration and reconfigures the global logger
// from it.
func LoadConfig(path, version string) (config.AppConfig, error) {
	xglog.Configure(xglog.Config{Level: "info", Service: ServiceName, Version: version})

	cfg, err := config.NewLoader(path, version).Load()
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: ServiceName, Version: version, Door: cfg.Door})

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger := xglog.WithComponent("bootstrap")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str(xglog.FieldPath, path).
		Str("door", cfg.Door).
		Msg("configuration loaded")
	return cfg, nil
}

// Build wires every component. On error everything opened so far is
// closed again.
func Build(ctx context.Context, cfg config.AppConfig, opts Options) (_ *Container, err error) {
	if ctx == nil {
		return nil, errors.New("bootstrap: nil context")
	}
	c := &Container{
		Config: cfg,
		Logger: xglog.WithComponent("bootstrap"),
		Clock:  opts.Clock,
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	if !opts.SkipStartupChecks {
		if err := health.PerformStartupChecks(ctx, cfg); err != nil {
			return nil, fmt.Errorf("startup checks failed: %w", err)
		}
	}

	if err := c.buildTelemetry(ctx); err != nil {
		return nil, err
	}
	if err := c.buildStore(ctx); err != nil {
		return nil, err
	}
	if err := c.buildDirectory(ctx); err != nil {
		return nil, err
	}
	if err := c.buildMutator(); err != nil {
		return nil, err
	}
	c.buildDevice(opts.Device)
	c.buildPlayer(opts.Player)
	if err := c.buildScanner(); err != nil {
		return nil, err
	}
	c.buildHealth()

	c.Logger.Info().
		Str(xglog.FieldEvent, "bootstrap.ready").
		Str("directory", cfg.Directory.Source).
		Str("mutator", cfg.Mutator.Backend).
		Str("camera", cfg.Camera.Driver).
		Bool("lease", c.Lease != nil).
		Int("tickets", c.Directory.Len()).
		Msg("door wired")
	return c, nil
}

func (c *Container) buildTelemetry(ctx context.Context) error {
	t := c.Config.Telemetry
	p, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        t.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: c.Config.Version,
		Environment:    t.Environment,
		Door:           c.Config.Door,
		ExporterType:   t.Exporter,
		Endpoint:       t.Endpoint,
		SamplingRate:   t.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	c.Telemetry = p
	c.onClose("telemetry", p.Shutdown)
	return nil
}

func (c *Container) needsStore() bool {
	return c.Config.Directory.Source == "sqlite" || c.Config.Mutator.Backend == "sqlite"
}

func (c *Container) buildStore(ctx context.Context) error {
	if !c.needsStore() {
		return nil
	}
	db, err := sqlitestore.Open(c.Config.Store.Path, sqlitestore.Config{
		BusyTimeout:  c.Config.Store.BusyTimeout,
		MaxOpenConns: sqlitestore.DefaultConfig().MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	st, err := sqlitestore.New(ctx, db, c.Config.Door, c.Clock)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("init store: %w", err)
	}
	c.Store = st
	c.onClose("store", func(context.Context) error { return st.Close() })
	return nil
}

func (c *Container) buildDirectory(ctx context.Context) error {
	c.Directory = directory.New(xglog.WithComponent("directory"))

	switch c.Config.Directory.Source {
	case "file":
		var onReload func()
		if c.Store != nil {
			// The file feeds the store; the snapshot is then re-read so
			// local check-ins survive a reload of an older file.
			onReload = func() { c.syncFileIntoStore(context.Background()) }
		}
		c.Watcher = directory.NewWatcher(c.Config.Directory.File, c.Directory, c.Config.Directory.Debounce, onReload)
		if err := c.Watcher.Load(); err != nil {
			return fmt.Errorf("load directory file: %w", err)
		}
	default:
		if err := c.reloadFromStore(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) syncFileIntoStore(ctx context.Context) {
	if err := c.Store.Import(ctx, c.Directory.Export()); err != nil {
		c.Logger.Error().Err(err).Str(xglog.FieldEvent, "directory.import_failed").Msg("could not import directory file into store")
		return
	}
	if err := c.reloadFromStore(ctx); err != nil {
		c.Logger.Error().Err(err).Str(xglog.FieldEvent, "directory.reload_failed").Msg("could not reload directory from store")
	}
}

func (c *Container) reloadFromStore(ctx context.Context) error {
	d, err := c.Store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load directory from store: %w", err)
	}
	rejected := c.Directory.Replace(d)
	if len(rejected) > 0 {
		c.Logger.Warn().
			Str(xglog.FieldEvent, "directory.rejected").
			Int("count", len(rejected)).
			Msg("store rows rejected by the directory")
	}
	return nil
}

// ReloadDirectory re-reads the directory from its source.
func (c *Container) ReloadDirectory(ctx context.Context) error {
	if c.Watcher != nil {
		return c.Watcher.Load()
	}
	return c.reloadFromStore(ctx)
}

func (c *Container) buildMutator() error {
	m := c.Config.Mutator
	var base verify.Mutator
	switch m.Backend {
	case "remote":
		r, err := mutator.NewRemote(m.Endpoint, mutator.Options{
			Timeout:        m.Timeout,
			Token:          m.Token,
			UserAgent:      ServiceName + "/" + c.Config.Version,
			Door:           c.Config.Door,
			AllowInsecure:  m.AllowInsecure,
			RateLimit:      rate.Limit(m.RateLimit),
			RateLimitBurst: m.RateLimitBurst,
			BreakerFails:   m.BreakerFailures,
			BreakerReset:   m.BreakerReset,
			Clock:          c.Clock,
		})
		if err != nil {
			return fmt.Errorf("remote mutator: %w", err)
		}
		c.Remote = r
		base = r
	default:
		base = c.Store
	}

	c.Mutator = base
	if addr := c.Config.Redis.Addr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     c.Config.Redis.Password,
			DB:           c.Config.Redis.DB,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			PoolSize:     4,
		})
		c.onClose("redis", func(context.Context) error { return client.Close() })
		c.Lease = mutator.NewLeaseGuard(base, client, mutator.LeaseConfig{
			Door: c.Config.Door,
			TTL:  c.Config.Redis.LeaseTTL,
		}, xglog.WithComponent("lease"))
		c.Mutator = c.Lease
	}
	return nil
}

func (c *Container) buildDevice(override camera.Device) {
	if override != nil {
		c.Device = override
		return
	}
	cam := c.Config.Camera
	switch cam.Driver {
	case "v4l2":
		c.Device = v4l2.New(v4l2.Config{
			Path:         cam.Device,
			FFmpegBin:    cam.FFmpegBin,
			Width:        cam.Width,
			Height:       cam.Height,
			FPS:          cam.FPS,
			StartTimeout: cam.StartTimeout,
		}, xglog.WithComponent("camera"))
	case "stub":
		c.Device = stub.New(cam.Device)
	}
}

func (c *Container) buildPlayer(override audio.Player) {
	if override != nil {
		c.Player = override
		return
	}
	a := c.Config.Audio
	if a.Command == "" {
		c.Player = audio.Discard{}
		return
	}
	fb := audio.NewFeedback(audio.CommandSink{Command: append([]string{a.Command}, a.Args...)}, a.SampleRate, xglog.WithComponent("audio"))
	c.Player = fb
	c.onClose("audio", func(context.Context) error {
		fb.Wait()
		return nil
	})
}

func (c *Container) buildScanner() error {
	loc, err := c.Config.Location()
	if err != nil {
		return err
	}
	s := c.Config.Scanner
	mode, _ := scanner.ParseMode(s.Mode)
	c.Scanner = scanner.New(scanner.Config{
		Engine: verify.Config{
			TargetEventID: s.TargetEventID,
			Timeout:       s.Timeout,
			SuccessDelay:  s.SuccessDelay,
			FailureDelay:  s.FailureDelay,
			Location:      loc,
		},
		Mode:     mode,
		Settings: scanner.Settings{AutoConfirm: s.AutoConfirm, SoundEnabled: s.SoundEnabled},
	}, scanner.Deps{
		Directory: c.Directory,
		Mutator:   c.Mutator,
		Device:    c.Device,
		Clock:     c.Clock,
		Player:    c.Player,
		Ledger:    ledger.New(s.HistorySize),
		Logger:    xglog.Base(),
	})
	c.onClose("scanner", func(context.Context) error {
		c.Scanner.Close()
		return nil
	})
	return nil
}

func (c *Container) buildHealth() {
	hm := health.NewManager(c.Config.Version)
	hm.RegisterChecker(health.NewDirectoryChecker(c.Directory))
	if c.Store != nil {
		hm.RegisterChecker(health.NewPingChecker("sqlite", c.Store, true))
	}
	if c.Lease != nil {
		hm.RegisterChecker(health.NewPingChecker("redis", c.Lease, false))
	}
	if c.Remote != nil {
		remote := c.Remote
		hm.RegisterChecker(health.NewFuncChecker("mutator", func(context.Context) health.CheckResult {
			if st := remote.BreakerState(); st != resilience.StateClosed {
				return health.CheckResult{Status: health.StatusDegraded, Message: "circuit " + string(st)}
			}
			return health.CheckResult{Status: health.StatusHealthy, Message: remote.Endpoint()}
		}))
	}
	hm.RegisterChecker(health.NewCameraChecker(c.Scanner))
	c.Health = hm
}

// RegisterHooks hands the teardown steps to the daemon manager, which
// runs them in reverse registration order.
func (c *Container) RegisterHooks(m daemon.Manager) {
	for _, nc := range c.closers {
		m.RegisterShutdownHook(nc.name, daemon.ShutdownHook(nc.fn))
	}
}

// Close tears everything down in reverse order. It is idempotent.
func (c *Container) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		for i := len(c.closers) - 1; i >= 0; i-- {
			nc := c.closers[i]
			if err := nc.fn(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", nc.name, err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
