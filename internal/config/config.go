// Package config provides the configuration schema and loader for the
// aubridge daemon.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the aubridge daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the corresponding [slog.Level]. Unrecognised values
// map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HostMode selects the built-in demo host pipeline wired to the bridge by
// the daemon.
type HostMode string

const (
	// HostLoopback echoes captured peer audio back out the render sink.
	HostLoopback HostMode = "loopback"

	// HostTone renders a continuous sine tone and logs the captured peak
	// level once per second.
	HostTone HostMode = "tone"

	// HostSilence renders silence and discards captured audio. Useful for
	// soak-testing cadence and metrics.
	HostSilence HostMode = "silence"
)

// IsValid reports whether m is a recognised host mode.
func (m HostMode) IsValid() bool {
	switch m {
	case HostLoopback, HostTone, HostSilence:
		return true
	}
	return false
}

// Config is the root configuration structure for the aubridge daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Bridge BridgeConfig `yaml:"bridge"`
	Stream StreamConfig `yaml:"stream"`
	Host   HostConfig   `yaml:"host"`
}

// ServerConfig holds logging and metrics settings for the daemon.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9091"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// BridgeConfig holds the peer socket settings.
type BridgeConfig struct {
	// SocketPath is the filesystem path of the listening Unix socket.
	// Empty falls back to the AUBRIDGE_SOCKET environment variable, then
	// the built-in default.
	SocketPath string `yaml:"socket_path"`
}

// StreamConfig fixes the PCM format of both bridge directions.
type StreamConfig struct {
	// SampleRate in Hz. Default: 8000.
	SampleRate int `yaml:"sample_rate"`

	// PtimeMS is the frame period in milliseconds. Default: 20.
	PtimeMS int `yaml:"ptime_ms"`
}

// Ptime returns the frame period as a [time.Duration].
func (s StreamConfig) Ptime() time.Duration {
	return time.Duration(s.PtimeMS) * time.Millisecond
}

// HostConfig selects and tunes the demo host pipeline.
type HostConfig struct {
	// Mode picks the demo host behaviour. Default: loopback.
	Mode HostMode `yaml:"mode"`

	// ToneHz is the sine frequency for [HostTone]. Default: 440.
	ToneHz float64 `yaml:"tone_hz"`
}

// Default returns a Config populated with the daemon defaults: loopback
// host, 8000 Hz / 20 ms streams, info logging, metrics disabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Stream: StreamConfig{SampleRate: 8000, PtimeMS: 20},
		Host:   HostConfig{Mode: HostLoopback, ToneHz: 440},
	}
}
