// SPDX-License-Identifier: MIT

// Command turnstiled runs the door check-in daemon: the verification
// engine, its camera and manual inputs, and the HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ManuGH/turnstile/internal/app/bootstrap"
	"github.com/ManuGH/turnstile/internal/config"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			return runConfigCLI(args[1:], stdout, stderr)
		case "snapshot":
			return runSnapshotCLI(args[1:], stdout, stderr)
		case "storage":
			return runStorageCLI(args[1:], stdout, stderr)
		case "healthcheck":
			return runHealthcheckCLI(args[1:], stdout, stderr)
		}
	}

	fs := pflag.NewFlagSet("turnstiled", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, resolveConfigPath(*configPath)); err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon failed")
		return 1
	}
	return 0
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := bootstrap.LoadConfig(configPath, version.Version)
	if err != nil {
		return err
	}

	logger := xglog.WithComponent("daemon")
	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", config.ParseServerConfig(cfg).ListenAddr).
		Msg("starting turnstile")
	if cfg.API.Token == "" {
		logger.Warn().
			Str("security", "weak").
			Msg("API token not configured, mutating routes are open. Set TURNSTILE_API_TOKEN.")
	}

	d, err := bootstrap.WireDaemon(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info().Str(xglog.FieldEvent, "shutdown").Msg("server exiting")
	return nil
}

// resolveConfigPath prefers the flag, then TURNSTILE_CONFIG.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
}
