package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LLMChanged means the polishing client must be rebuilt.
	LLMChanged bool

	// AudioChanged covers the VAD tuning knobs, picked up by the next
	// recording session.
	AudioChanged bool
}

// Changed reports whether the diff carries any reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LLMChanged || d.AudioChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; server
// address, model directory, and plugin changes need a restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}
	if old.LLM != new.LLM {
		d.LLMChanged = true
	}
	if old.Audio.SilenceThreshold != new.Audio.SilenceThreshold ||
		old.Audio.SilenceDurationMS != new.Audio.SilenceDurationMS {
		d.AudioChanged = true
	}

	return d
}
