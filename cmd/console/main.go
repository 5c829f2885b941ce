// SPDX-License-Identifier: MIT

// Command turnstile-console runs a door in the terminal: the same
// verification engine as the daemon, driven by a full-screen UI instead
// of the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/ManuGH/turnstile/internal/app/bootstrap"
	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/console"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, logOutput, mode string

	flagSet := pflag.NewFlagSet("turnstile-console", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (YAML)")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file instead of discarding them")
	flagSet.StringVar(&mode, "mode", "", "start in CAMERA or MANUAL mode (overrides config)")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
	}
	cfg, err := bootstrap.LoadConfig(configPath, version.Version)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Scanner.Mode = strings.ToUpper(mode)
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	// The alternate screen owns stdout; logs go to a file or nowhere.
	closeLog, err := redirectLogs(logOutput, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close(context.WithoutCancel(ctx)) }()

	if err := c.Scanner.Start(ctx); err != nil {
		var failure *camera.Failure
		if !errors.As(err, &failure) {
			return err
		}
	}

	loc, _ := cfg.Location()
	model := console.NewModel(ctx, c.Scanner,
		console.WithLocation(loc),
		console.WithDoorName(cfg.Door),
	)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func redirectLogs(path, level string) (func(), error) {
	if path == "" {
		xglog.Configure(xglog.Config{Level: level, Service: bootstrap.ServiceName, Version: version.Version, Output: io.Discard})
		return func() {}, nil
	}
	// #nosec G304 -- log path is provided by the operator
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	xglog.Configure(xglog.Config{Level: level, Service: bootstrap.ServiceName, Version: version.Version, Output: f})
	return func() { _ = f.Close() }, nil
}
