package config_test

import (
	"testing"

	"github.com/harmonium/harmonium/internal/config"
)

func TestLogLevelIsValid(t *testing.T) {
	valid := []config.LogLevel{config.LogLevelDebug, config.LogLevelInfo, config.LogLevelWarn, config.LogLevelError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("bananas").IsValid() {
		t.Error("bananas should not be valid")
	}
}

func TestStorageBackendIsValid(t *testing.T) {
	if !config.StorageBackendJSONFile.IsValid() {
		t.Error("jsonfile should be valid")
	}
	if !config.StorageBackendPostgres.IsValid() {
		t.Error("postgres should be valid")
	}
	if config.StorageBackend("sqlite").IsValid() {
		t.Error("sqlite should not be valid")
	}
}

func TestEngineConfigDurations(t *testing.T) {
	e := config.EngineConfig{
		CheckpointIntervalSeconds: 15,
		ResolveTimeoutSeconds:     20,
		StorageTimeoutSeconds:     5,
		StaggerDelayMillis:        500,
		WatchdogEpsilonSeconds:    2,
		RateLimitSeconds:          3,
	}
	ckpt, resolve, storage, stagger, epsilon := e.Durations()
	if ckpt.Seconds() != 15 {
		t.Errorf("checkpoint: got %v", ckpt)
	}
	if resolve.Seconds() != 20 {
		t.Errorf("resolve: got %v", resolve)
	}
	if storage.Seconds() != 5 {
		t.Errorf("storage: got %v", storage)
	}
	if stagger.Milliseconds() != 500 {
		t.Errorf("stagger: got %v", stagger)
	}
	if epsilon.Seconds() != 2 {
		t.Errorf("epsilon: got %v", epsilon)
	}
	if e.RateLimit().Seconds() != 3 {
		t.Errorf("rate limit: got %v", e.RateLimit())
	}
}
