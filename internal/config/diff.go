package config

import "slices"

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; server, store, and bible settings
// require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchingChanged means the match engine should be rebuilt. Running
	// sessions keep their engine; new sessions pick up the new tunables.
	MatchingChanged bool

	// SpeechChanged affects only sessions opened after the reload.
	SpeechChanged bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MatchingChanged && !d.SpeechChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Matching.LookbackFactor != new.Matching.LookbackFactor ||
		old.Matching.Threshold != new.Matching.Threshold ||
		old.Matching.RelaxedThreshold != new.Matching.RelaxedThreshold ||
		old.Matching.MinLengthRatio != new.Matching.MinLengthRatio ||
		old.Matching.RelaxedLengthRatio != new.Matching.RelaxedLengthRatio ||
		old.Matching.AbsoluteAllowance != new.Matching.AbsoluteAllowance ||
		old.Matching.Relaxation != new.Matching.Relaxation ||
		!slices.Equal(old.Matching.DifficultWords, new.Matching.DifficultWords) {
		d.MatchingChanged = true
	}

	if old.Speech != new.Speech {
		d.SpeechChanged = true
	}

	return d
}
