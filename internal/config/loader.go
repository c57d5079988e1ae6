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
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with harmonium's documented
// defaults, so a minimal config file is still usable.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
	if cfg.Engine.CheckpointIntervalSeconds == 0 {
		cfg.Engine.CheckpointIntervalSeconds = 15
	}
	if cfg.Engine.RateLimitSeconds == 0 {
		cfg.Engine.RateLimitSeconds = 3
	}
	if cfg.Engine.ResolveTimeoutSeconds == 0 {
		cfg.Engine.ResolveTimeoutSeconds = 20
	}
	if cfg.Engine.StorageTimeoutSeconds == 0 {
		cfg.Engine.StorageTimeoutSeconds = 5
	}
	if cfg.Engine.StaggerDelayMillis == 0 {
		cfg.Engine.StaggerDelayMillis = 500
	}
	if cfg.Engine.MaxQueue == 0 {
		cfg.Engine.MaxQueue = 50
	}
	if cfg.Engine.WatchdogEpsilonSeconds == 0 {
		cfg.Engine.WatchdogEpsilonSeconds = 2
	}
	if cfg.Resolver.Binary == "" {
		cfg.Resolver.Binary = "yt-dlp"
	}
	if cfg.Resolver.MaxAttempts == 0 {
		cfg.Resolver.MaxAttempts = 3
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendJSONFile
	}
	if cfg.Storage.Backend == StorageBackendJSONFile && cfg.Storage.Path == "" {
		cfg.Storage.Path = "harmonium_state.json"
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.BotToken == "" {
		errs = append(errs, errors.New("discord.bot_token is required"))
	}
	if cfg.Discord.AssistantToken == "" {
		errs = append(errs, errors.New("discord.assistant_token is required"))
	}

	if cfg.Engine.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("engine.max_queue %d must be >= 0", cfg.Engine.MaxQueue))
	}
	if cfg.Engine.CheckpointIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("engine.checkpoint_interval_seconds %d must be > 0", cfg.Engine.CheckpointIntervalSeconds))
	}
	if cfg.Engine.RateLimitSeconds < 0 {
		errs = append(errs, fmt.Errorf("engine.rate_limit_seconds %d must be >= 0", cfg.Engine.RateLimitSeconds))
	}
	if cfg.Engine.ResolveTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("engine.resolve_timeout_seconds %d must be > 0", cfg.Engine.ResolveTimeoutSeconds))
	}
	if cfg.Engine.StorageTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("engine.storage_timeout_seconds %d must be > 0", cfg.Engine.StorageTimeoutSeconds))
	}

	if cfg.Resolver.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("resolver.max_attempts %d must be > 0", cfg.Resolver.MaxAttempts))
	}

	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: jsonfile, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StorageBackendJSONFile && cfg.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage.backend is jsonfile"))
	}
	if cfg.Storage.Backend == StorageBackendPostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}

	return errors.Join(errs...)
}
