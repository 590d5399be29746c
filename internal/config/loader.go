package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Speech.SettleMillis < 0 {
		errs = append(errs, fmt.Errorf("speech.settle_ms %d must not be negative", cfg.Speech.SettleMillis))
	}

	m := cfg.Matching
	if m.LookbackFactor < 0 || (m.LookbackFactor > 0 && m.LookbackFactor < 1) {
		errs = append(errs, fmt.Errorf("matching.lookback_factor %v must be at least 1", m.LookbackFactor))
	}
	if m.Threshold < 0 || m.Threshold > 100 {
		errs = append(errs, fmt.Errorf("matching.threshold %d must be between 0 and 100", m.Threshold))
	}
	if m.RelaxedThreshold < 0 || m.RelaxedThreshold > 100 {
		errs = append(errs, fmt.Errorf("matching.relaxed_threshold %d must be between 0 and 100", m.RelaxedThreshold))
	}
	if m.Threshold > 0 && m.RelaxedThreshold > m.Threshold {
		errs = append(errs, fmt.Errorf("matching.relaxed_threshold %d must not exceed matching.threshold %d", m.RelaxedThreshold, m.Threshold))
	}
	if m.MinLengthRatio < 0 || m.MinLengthRatio > 1 {
		errs = append(errs, fmt.Errorf("matching.min_length_ratio %v must be between 0 and 1", m.MinLengthRatio))
	}
	if m.RelaxedLengthRatio < 0 || m.RelaxedLengthRatio > 1 {
		errs = append(errs, fmt.Errorf("matching.relaxed_length_ratio %v must be between 0 and 1", m.RelaxedLengthRatio))
	}
	if m.AbsoluteAllowance < 0 {
		errs = append(errs, fmt.Errorf("matching.absolute_allowance %d must not be negative", m.AbsoluteAllowance))
	}
	if m.Relaxation != "" && !m.Relaxation.IsValid() {
		errs = append(errs, fmt.Errorf("matching.relaxation %q is invalid; valid values: difficulty, platform", m.Relaxation))
	}

	if cfg.Bible.DataPath == "" {
		errs = append(errs, errors.New("bible.data_path is required"))
	}

	return errors.Join(errs...)
}
