// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // doors run on minimal images without a zoneinfo database

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) envString(name, defaultVal string) string {
	return ParseString(l.key(name), defaultVal)
}

func (l *Loader) envBool(name string, defaultVal bool) bool {
	return ParseBool(l.key(name), defaultVal)
}

func (l *Loader) envInt(name string, defaultVal int) int {
	return ParseInt(l.key(name), defaultVal)
}

func (l *Loader) envDuration(name string, defaultVal time.Duration) time.Duration {
	return ParseDuration(l.key(name), defaultVal)
}

func (l *Loader) envFloat(name string, defaultVal float64) float64 {
	return ParseFloat(l.key(name), defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file onto cfg. Keys absent from the file keep
// their current values.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Door = l.envString("DOOR", cfg.Door)

	cfg.Server.ListenAddr = l.envString("LISTEN", cfg.Server.ListenAddr)
	cfg.Metrics.Enabled = l.envBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = l.envString("METRICS_LISTEN", cfg.Metrics.ListenAddr)
	cfg.API.Token = l.envString("API_TOKEN", cfg.API.Token)

	s := &cfg.Scanner
	s.TargetEventID = l.envString("TARGET_EVENT", s.TargetEventID)
	s.Mode = strings.ToUpper(l.envString("MODE", s.Mode))
	s.AutoConfirm = l.envBool("AUTO_CONFIRM", s.AutoConfirm)
	s.SoundEnabled = l.envBool("SOUND", s.SoundEnabled)
	s.Timeout = l.envDuration("VERIFY_TIMEOUT", s.Timeout)
	s.SuccessDelay = l.envDuration("SUCCESS_DELAY", s.SuccessDelay)
	s.FailureDelay = l.envDuration("FAILURE_DELAY", s.FailureDelay)
	s.HistorySize = l.envInt("HISTORY_SIZE", s.HistorySize)
	s.TimeZone = l.envString("TIME_ZONE", s.TimeZone)

	c := &cfg.Camera
	c.Driver = l.envString("CAMERA_DRIVER", c.Driver)
	c.Device = l.envString("CAMERA_DEVICE", c.Device)
	c.FFmpegBin = l.envString("FFMPEG_BIN", c.FFmpegBin)
	c.Width = l.envInt("CAMERA_WIDTH", c.Width)
	c.Height = l.envInt("CAMERA_HEIGHT", c.Height)
	c.FPS = l.envInt("CAMERA_FPS", c.FPS)
	c.StartTimeout = l.envDuration("CAMERA_START_TIMEOUT", c.StartTimeout)

	cfg.Audio.Command = l.envString("AUDIO_COMMAND", cfg.Audio.Command)
	cfg.Audio.Args = ParseList(l.key("AUDIO_ARGS"), cfg.Audio.Args)
	cfg.Audio.SampleRate = l.envInt("AUDIO_SAMPLE_RATE", cfg.Audio.SampleRate)

	d := &cfg.Directory
	d.Source = l.envString("DIRECTORY_SOURCE", d.Source)
	d.File = l.envString("DIRECTORY_FILE", d.File)
	d.Watch = l.envBool("DIRECTORY_WATCH", d.Watch)
	d.Debounce = l.envDuration("DIRECTORY_DEBOUNCE", d.Debounce)

	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Store.BusyTimeout = l.envDuration("STORE_BUSY_TIMEOUT", cfg.Store.BusyTimeout)

	m := &cfg.Mutator
	m.Backend = l.envString("MUTATOR", m.Backend)
	m.Endpoint = l.envString("MUTATOR_ENDPOINT", m.Endpoint)
	m.Token = l.envString("MUTATOR_TOKEN", m.Token)
	m.AllowInsecure = l.envBool("MUTATOR_ALLOW_INSECURE", m.AllowInsecure)
	m.Timeout = l.envDuration("MUTATOR_TIMEOUT", m.Timeout)
	m.RateLimit = l.envFloat("MUTATOR_RATE_LIMIT", m.RateLimit)
	m.RateLimitBurst = l.envInt("MUTATOR_RATE_BURST", m.RateLimitBurst)
	m.BreakerFailures = l.envInt("MUTATOR_BREAKER_FAILURES", m.BreakerFailures)
	m.BreakerReset = l.envDuration("MUTATOR_BREAKER_RESET", m.BreakerReset)

	r := &cfg.Redis
	r.Addr = l.envString("REDIS_ADDR", r.Addr)
	r.Password = l.envString("REDIS_PASSWORD", r.Password)
	r.DB = l.envInt("REDIS_DB", r.DB)
	r.LeaseTTL = l.envDuration("REDIS_LEASE_TTL", r.LeaseTTL)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = l.envString("TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", t.SamplingRate)
	t.Environment = l.envString("TELEMETRY_ENVIRONMENT", t.Environment)

	cfg.RateLimit.Enabled = l.envBool("RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = l.envInt("RATELIMIT_RPM", cfg.RateLimit.RequestsPerMinute)
}

// Location resolves the scanner time zone.
func (c AppConfig) Location() (*time.Location, error) {
	if c.Scanner.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Scanner.TimeZone)
}

// String renders the configuration with secrets masked.
func (c AppConfig) String() string {
	masked := c
	for _, s := range []*string{&masked.API.Token, &masked.Mutator.Token, &masked.Redis.Password} {
		if *s != "" {
			*s = "***"
		}
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}
