// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ManuGH/turnstile/internal/config"
	"github.com/ManuGH/turnstile/internal/log"
)

// PerformStartupChecks probes the filesystem before anything is wired.
// Store and directory problems are fatal and reported together. Missing
// camera or audio helpers only warn, since a door still works with manual
// entry and without sound.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup")

	var errs []error
	if cfg.Directory.Source == "sqlite" || cfg.Mutator.Backend == "sqlite" {
		if err := probeWritableDir(filepath.Dir(filepath.Clean(cfg.Store.Path))); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if cfg.Directory.Source == "file" {
		if err := probeReadable(cfg.Directory.File); err != nil {
			errs = append(errs, fmt.Errorf("directory: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	helpers := map[string]string{}
	if cfg.Camera.Driver == "v4l2" {
		helpers["camera"] = cfg.Camera.FFmpegBin
	}
	if cfg.Audio.Command != "" {
		helpers["audio"] = cfg.Audio.Command
	}
	for component, bin := range helpers {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "startup.binary_missing").
				Str(log.FieldComponent, component).
				Str("binary", bin).
				Msg("helper binary not found")
		}
	}

	logger.Info().Str(log.FieldEvent, "startup.checked").Msg("startup checks passed")
	return ctx.Err()
}

// probeWritableDir creates and removes a scratch file in dir.
func probeWritableDir(dir string) error {
	f, err := os.CreateTemp(dir, ".turnstile-probe-*")
	if err != nil {
		return fmt.Errorf("%s is not a writable directory: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func probeReadable(path string) error {
	// #nosec G304 -- operator-configured path
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
