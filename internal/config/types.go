// SPDX-License-Identifier: MIT

// Package config loads the door configuration with precedence
// ENV > YAML file > defaults.
package config

import "time"

// AppConfig is the effective door configuration.
type AppConfig struct {
	Version  string `yaml:"-"`
	LogLevel string `yaml:"logLevel"`
	// Door names this entrance in leases, audit rows and logs.
	Door string `yaml:"door"`

	Server    ServerSection   `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	API       APIConfig       `yaml:"api"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Camera    CameraConfig    `yaml:"camera"`
	Audio     AudioConfig     `yaml:"audio"`
	Directory DirectoryConfig `yaml:"directory"`
	Store     StoreConfig     `yaml:"store"`
	Mutator   MutatorConfig   `yaml:"mutator"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// ServerSection holds the HTTP server settings from the file.
type ServerSection struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxHeaderBytes  int           `yaml:"maxHeaderBytes"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// MetricsConfig controls the Prometheus endpoint. An empty ListenAddr
// serves /metrics on the API listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// APIConfig guards the mutating API routes. An empty Token leaves them open.
type APIConfig struct {
	Token string `yaml:"token"`
}

// ScannerConfig tunes the verification engine and the orchestrator.
type ScannerConfig struct {
	TargetEventID string        `yaml:"targetEventId"`
	Mode          string        `yaml:"mode"`
	AutoConfirm   bool          `yaml:"autoConfirm"`
	SoundEnabled  bool          `yaml:"soundEnabled"`
	Timeout       time.Duration `yaml:"timeout"`
	SuccessDelay  time.Duration `yaml:"successDelay"`
	FailureDelay  time.Duration `yaml:"failureDelay"`
	HistorySize   int           `yaml:"historySize"`
	TimeZone      string        `yaml:"timeZone"`
}

// CameraConfig selects and tunes the capture adapter.
type CameraConfig struct {
	// Driver is "v4l2", "stub" or "none".
	Driver       string        `yaml:"driver"`
	Device       string        `yaml:"device"`
	FFmpegBin    string        `yaml:"ffmpegBin"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	FPS          int           `yaml:"fps"`
	StartTimeout time.Duration `yaml:"startTimeout"`
}

// AudioConfig selects the cue output. An empty Command discards cues.
type AudioConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	SampleRate int      `yaml:"sampleRate"`
}

// DirectoryConfig says where the ticket directory comes from.
type DirectoryConfig struct {
	// Source is "file" or "sqlite".
	Source   string        `yaml:"source"`
	File     string        `yaml:"file"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// StoreConfig locates the SQLite ticket store.
type StoreConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busyTimeout"`
}

// MutatorConfig selects the authoritative check-in backend.
type MutatorConfig struct {
	// Backend is "sqlite" or "remote".
	Backend         string        `yaml:"backend"`
	Endpoint        string        `yaml:"endpoint"`
	Token           string        `yaml:"token"`
	AllowInsecure   bool          `yaml:"allowInsecure"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rateLimit"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

// RedisConfig enables the cross-door lease when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LeaseTTL time.Duration `yaml:"leaseTTL"`
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Door:     "door-1",
		Server: ServerSection{
			ListenAddr:      defaultListenAddr,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			MaxHeaderBytes:  defaultMaxHeaderBytes,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Metrics: MetricsConfig{Enabled: true},
		Scanner: ScannerConfig{
			Mode:         "CAMERA",
			AutoConfirm:  true,
			SoundEnabled: true,
			Timeout:      10 * time.Second,
			SuccessDelay: 1500 * time.Millisecond,
			FailureDelay: 2500 * time.Millisecond,
			HistorySize:  10,
			TimeZone:     "UTC",
		},
		Camera: CameraConfig{
			Driver:       "v4l2",
			Device:       "/dev/video0",
			FFmpegBin:    "ffmpeg",
			Width:        640,
			Height:       480,
			FPS:          10,
			StartTimeout: 5 * time.Second,
		},
		Audio: AudioConfig{SampleRate: 22050},
		Directory: DirectoryConfig{
			Source:   "sqlite",
			Watch:    true,
			Debounce: 250 * time.Millisecond,
		},
		Store: StoreConfig{
			Path:        "turnstile.db",
			BusyTimeout: 5 * time.Second,
		},
		Mutator: MutatorConfig{
			Backend:         "sqlite",
			Timeout:         8 * time.Second,
			RateLimit:       5,
			RateLimitBurst:  10,
			BreakerFailures: 3,
			BreakerReset:    30 * time.Second,
		},
		Redis: RedisConfig{LeaseTTL: 30 * time.Second},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerMinute: 120},
	}
}
