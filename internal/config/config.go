// Package config provides the configuration schema and loader for the sori
// read-aloud server.
package config

import "github.com/podonamu/sori/internal/match"

// LogLevel controls log verbosity for the server.
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

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Speech   SpeechConfig   `yaml:"speech"`
	Matching MatchingConfig `yaml:"matching"`
	Store    StoreConfig    `yaml:"store"`
	Bible    BibleConfig    `yaml:"bible"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SpeechConfig tunes the browser-recogniser transcript bridge.
type SpeechConfig struct {
	// Language is the recognition language tag passed to the client
	// recogniser (e.g., "ko-KR").
	Language string `yaml:"language"`

	// SettleMillis is the delay before restarting recognition after a
	// stop. Constrained platforms need a brief pause to avoid racing
	// their own restart behaviour.
	SettleMillis int `yaml:"settle_ms"`

	// FullCycleAdvance forces a complete stop/start cycle between verses
	// instead of a soft buffer reset. Needed on platforms whose
	// recognisers keep stale audio across resets.
	FullCycleAdvance bool `yaml:"full_cycle_advance"`
}

// MatchingConfig tunes the verse match engine. Zero values fall back to the
// engine defaults.
type MatchingConfig struct {
	// LookbackFactor sizes the transcript suffix compared against the
	// target verse, as a multiple of the verse length.
	LookbackFactor float64 `yaml:"lookback_factor"`

	// Threshold is the minimum similarity score (0-100) for a match.
	Threshold int `yaml:"threshold"`

	// RelaxedThreshold replaces Threshold when the relaxation policy
	// applies to the current verse.
	RelaxedThreshold int `yaml:"relaxed_threshold"`

	// MinLengthRatio is the fraction of the verse length the transcript
	// window must reach.
	MinLengthRatio float64 `yaml:"min_length_ratio"`

	// RelaxedLengthRatio replaces MinLengthRatio under the platform
	// relaxation policy.
	RelaxedLengthRatio float64 `yaml:"relaxed_length_ratio"`

	// AbsoluteAllowance accepts short verses whose window falls at most
	// this many characters short of the verse length.
	AbsoluteAllowance int `yaml:"absolute_allowance"`

	// Relaxation picks which single axis may loosen the thresholds:
	// "difficulty" relaxes per hard-word verse, "platform" relaxes
	// uniformly.
	Relaxation match.Relaxation `yaml:"relaxation"`

	// DifficultWords overrides the built-in hard-word list.
	DifficultWords []string `yaml:"difficult_words"`
}

// EngineOptions translates the set fields into match engine options. Unset
// fields keep the engine defaults.
func (m MatchingConfig) EngineOptions() []match.Option {
	var opts []match.Option
	if m.LookbackFactor > 0 {
		opts = append(opts, match.WithLookbackFactor(m.LookbackFactor))
	}
	if m.Threshold > 0 || m.RelaxedThreshold > 0 {
		def, relaxed := m.Threshold, m.RelaxedThreshold
		if def == 0 {
			def = match.DefaultThreshold
		}
		if relaxed == 0 {
			relaxed = match.DefaultRelaxedThreshold
		}
		opts = append(opts, match.WithThresholds(def, relaxed))
	}
	if m.MinLengthRatio > 0 || m.RelaxedLengthRatio > 0 {
		def, relaxed := m.MinLengthRatio, m.RelaxedLengthRatio
		if def == 0 {
			def = match.DefaultMinLengthRatio
		}
		if relaxed == 0 {
			relaxed = match.DefaultRelaxedLengthRatio
		}
		opts = append(opts, match.WithLengthRatios(def, relaxed))
	}
	if m.AbsoluteAllowance > 0 {
		opts = append(opts, match.WithAbsoluteAllowance(m.AbsoluteAllowance))
	}
	if m.Relaxation != "" {
		opts = append(opts, match.WithRelaxation(m.Relaxation))
	}
	if len(m.DifficultWords) > 0 {
		opts = append(opts, match.WithClassifier(match.NewClassifier(m.DifficultWords...)))
	}
	return opts
}

// StoreConfig selects the progress store backend.
type StoreConfig struct {
	// PostgresDSN is the connection string for the progress database.
	// Empty selects the in-memory store (development only; progress is
	// lost on restart).
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BibleConfig locates the verse data.
type BibleConfig struct {
	// DataPath is the JSON file holding the full text, keyed
	// book → chapter → verse.
	DataPath string `yaml:"data_path"`
}
