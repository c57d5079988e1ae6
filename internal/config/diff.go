package config

// Diff describes what changed between two configs. Only fields that are
// safe to apply without a process restart are tracked — Discord tokens and
// the storage backend require a restart and are deliberately excluded.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RateLimitChanged     bool
	NewRateLimitSeconds  int
	MaxQueueChanged      bool
	NewMaxQueue          int
	CheckpointIntervalChanged bool
	NewCheckpointIntervalSeconds int
}

// Changed reports whether any tracked field differs.
func (d Diff) Changed() bool {
	return d.LogLevelChanged || d.RateLimitChanged || d.MaxQueueChanged || d.CheckpointIntervalChanged
}

// DiffConfig compares old and new configs and returns what changed among
// the fields safe to hot-reload.
func DiffConfig(old, new *Config) Diff {
	var d Diff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Engine.RateLimitSeconds != new.Engine.RateLimitSeconds {
		d.RateLimitChanged = true
		d.NewRateLimitSeconds = new.Engine.RateLimitSeconds
	}
	if old.Engine.MaxQueue != new.Engine.MaxQueue {
		d.MaxQueueChanged = true
		d.NewMaxQueue = new.Engine.MaxQueue
	}
	if old.Engine.CheckpointIntervalSeconds != new.Engine.CheckpointIntervalSeconds {
		d.CheckpointIntervalChanged = true
		d.NewCheckpointIntervalSeconds = new.Engine.CheckpointIntervalSeconds
	}

	return d
}
