package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied for unset fields. It is a convenience
// wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with the values from [Default].
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = def.Stream.SampleRate
	}
	if cfg.Stream.PtimeMS == 0 {
		cfg.Stream.PtimeMS = def.Stream.PtimeMS
	}
	if cfg.Host.Mode == "" {
		cfg.Host.Mode = def.Host.Mode
	}
	if cfg.Host.ToneHz == 0 {
		cfg.Host.ToneHz = def.Host.ToneHz
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Stream.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("stream.sample_rate %d must be positive", cfg.Stream.SampleRate))
	}
	if cfg.Stream.PtimeMS <= 0 {
		errs = append(errs, fmt.Errorf("stream.ptime_ms %d must be positive", cfg.Stream.PtimeMS))
	}
	if cfg.Stream.SampleRate > 0 && cfg.Stream.PtimeMS > 0 &&
		cfg.Stream.SampleRate*cfg.Stream.PtimeMS%1000 != 0 {
		errs = append(errs, fmt.Errorf("stream: sample_rate %d with ptime_ms %d does not yield a whole number of samples per frame", cfg.Stream.SampleRate, cfg.Stream.PtimeMS))
	}
	if !cfg.Host.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("host.mode %q is invalid; valid values: loopback, tone, silence", cfg.Host.Mode))
	}
	if cfg.Host.Mode == HostTone && cfg.Host.ToneHz <= 0 {
		errs = append(errs, fmt.Errorf("host.tone_hz %.1f must be positive", cfg.Host.ToneHz))
	}

	return errors.Join(errs...)
}
