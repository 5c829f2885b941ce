// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/turnstile/internal/netutil"
	"github.com/ManuGH/turnstile/internal/validate"
)

// Validate checks a merged configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("logLevel", strings.ToLower(cfg.LogLevel), []string{"trace", "debug", "info", "warn", "error"})
	v.NotEmpty("door", cfg.Door)

	v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr)
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr)
	}

	s := cfg.Scanner
	if strings.TrimSpace(s.TargetEventID) != s.TargetEventID {
		v.AddError("scanner.targetEventId", "must not carry surrounding whitespace", s.TargetEventID)
	}
	v.OneOf("scanner.mode", s.Mode, []string{"CAMERA", "MANUAL"})
	v.DurationRange("scanner.timeout", s.Timeout, time.Second, 2*time.Minute)
	v.DurationRange("scanner.successDelay", s.SuccessDelay, 100*time.Millisecond, time.Minute)
	v.DurationRange("scanner.failureDelay", s.FailureDelay, 100*time.Millisecond, time.Minute)
	v.Range("scanner.historySize", s.HistorySize, 1, 1000)
	if _, err := time.LoadLocation(s.TimeZone); err != nil {
		v.AddError("scanner.timeZone", fmt.Sprintf("unknown time zone: %v", err), s.TimeZone)
	}

	c := cfg.Camera
	v.OneOf("camera.driver", c.Driver, []string{"v4l2", "stub", "none"})
	if c.Driver == "v4l2" {
		v.NotEmpty("camera.device", c.Device)
		v.NotEmpty("camera.ffmpegBin", c.FFmpegBin)
		v.Range("camera.width", c.Width, 160, 3840)
		v.Range("camera.height", c.Height, 120, 2160)
		v.Range("camera.fps", c.FPS, 1, 60)
	}

	v.Range("audio.sampleRate", cfg.Audio.SampleRate, 8000, 48000)

	d := cfg.Directory
	v.OneOf("directory.source", d.Source, []string{"file", "sqlite"})
	if d.Source == "file" {
		v.NotEmpty("directory.file", d.File)
	}

	m := cfg.Mutator
	v.OneOf("mutator.backend", m.Backend, []string{"sqlite", "remote"})
	if d.Source == "sqlite" || m.Backend == "sqlite" {
		v.NotEmpty("store.path", cfg.Store.Path)
	}
	if m.Backend == "remote" {
		if _, err := netutil.ParseEndpoint(m.Endpoint, m.AllowInsecure); err != nil {
			v.AddError("mutator.endpoint", err.Error(), netutil.SanitizeURL(m.Endpoint))
		}
		if m.RateLimit <= 0 {
			v.AddError("mutator.rateLimit", "must be positive", m.RateLimit)
		}
		v.Positive("mutator.breakerFailures", m.BreakerFailures)
	}

	if cfg.Redis.Addr != "" {
		v.DurationRange("redis.leaseTTL", cfg.Redis.LeaseTTL, time.Second, 10*time.Minute)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	if cfg.RateLimit.Enabled {
		v.Positive("rateLimit.requestsPerMinute", cfg.RateLimit.RequestsPerMinute)
	}

	return v.Err()
}
