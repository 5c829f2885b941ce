// SPDX-License-Identifier: MIT

// Package v4l2 captures frames from a Video4Linux device through an
// ffmpeg helper process and decodes QR codes with zxing.
package v4l2

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/camera"
	xglog "github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/procgroup"
)

// Config describes the capture device.
type Config struct {
	Path         string
	FFmpegBin    string
	Width        int
	Height       int
	FPS          int
	StartTimeout time.Duration
	KillGrace    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/dev/video0"
	}
	if c.FFmpegBin == "" {
		c.FFmpegBin = "ffmpeg"
	}
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.FPS <= 0 {
		c.FPS = 10
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 5 * time.Second
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 500 * time.Millisecond
	}
	return c
}

// Device implements camera.Device for /dev/videoN.
type Device struct {
	cfg    Config
	decode DecodeFunc
	logger zerolog.Logger
}

// New returns a device; nothing is opened until Acquire.
func New(cfg Config, logger zerolog.Logger) *Device {
	cfg = cfg.withDefaults()
	return &Device{
		cfg:    cfg,
		decode: NewQRDecoder(),
		logger: logger.With().Str(xglog.FieldComponent, "v4l2").Str(xglog.FieldDevice, cfg.Path).Logger(),
	}
}

// Name implements camera.Device.
func (d *Device) Name() string { return d.cfg.Path }

// Args returns the ffmpeg argument vector used for capture.
func (d *Device) Args() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(d.cfg.FPS),
		"-video_size", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
		"-i", d.cfg.Path,
		"-vf", fmt.Sprintf("scale=%d:%d", d.cfg.Width, d.cfg.Height),
		"-f", "rawvideo", "-pix_fmt", "gray",
		"pipe:1",
	}
}

// Probe opens and closes the device node to surface permission and
// presence errors before a helper process is spawned.
func (d *Device) Probe() error {
	fh, err := os.OpenFile(d.cfg.Path, os.O_RDWR, 0)
	if err != nil {
		return camera.NewFailure(camera.Classify(err), err)
	}
	return fh.Close()
}

// Acquire implements camera.Device. It returns once the first frame has
// arrived so that busy devices fail here and not in the decode loop.
func (d *Device) Acquire(ctx context.Context) (camera.Feed, error) {
	if err := d.Probe(); err != nil {
		return nil, err
	}

	cmd := exec.Command(d.cfg.FFmpegBin, d.Args()...)
	procgroup.Set(cmd)
	stderr := newLineRing(32)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, camera.NewFailure(camera.FailureUnknown, err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, camera.NewFailure(camera.FailureUnknown, fmt.Errorf("capture helper %q not found: %w", d.cfg.FFmpegBin, err))
		}
		return nil, camera.NewFailure(camera.FailureUnknown, err)
	}

	// Wait may only run once stdout is drained, so the feed's reader
	// reaps the helper and hands the result on for Terminate.
	waitCh := make(chan error, 1)
	f := newFeed(stdout, d.cfg.Width, d.cfg.Height, d.decode, stderr, func() error {
		err := cmd.Wait()
		waitCh <- err
		return err
	})
	f.stop = func() {
		if err := procgroup.Terminate(cmd, waitCh, d.cfg.KillGrace); err != nil {
			d.logger.Debug().Err(err).Str(xglog.FieldEvent, "v4l2.helper_exit").Msg("capture helper exited")
		}
	}

	timer := time.NewTimer(d.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case <-f.first:
		d.logger.Info().Str(xglog.FieldEvent, "v4l2.started").Int("pid", cmd.Process.Pid).Msg("capture helper streaming")
		return f, nil
	case <-f.readDone:
		failure := f.failure()
		_ = f.Release()
		return nil, failure
	case <-ctx.Done():
		_ = f.Release()
		return nil, ctx.Err()
	case <-timer.C:
		_ = f.Release()
		return nil, camera.NewFailure(camera.FailureUnknown, fmt.Errorf("no frames from %s within %s", d.cfg.Path, d.cfg.StartTimeout))
	}
}
