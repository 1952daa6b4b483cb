package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*EngineConfig, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.flowrun/config.json
// Project: .flowrun/config.json (relative to cwd)
func LoadDefault() (*EngineConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".flowrun", "config.json")
	projectPath := filepath.Join(".flowrun", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *EngineConfig, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Parse JSON
	var loaded EngineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Overlay scalar sections field by field; zero values mean "not set"
	overlayRun(&base.Run, loaded.Run)
	overlayRetry(&base.Retry, loaded.Retry)
	overlayBreaker(&base.Breaker, loaded.Breaker)

	// Merge executors
	for key, ex := range loaded.Executors {
		base.Executors[key] = ex
	}

	// Merge stage overrides
	for key, st := range loaded.Stages {
		base.Stages[key] = st
	}

	return nil
}

func overlayRun(base *RunConfig, in RunConfig) {
	if in.WorkDir != "" {
		base.WorkDir = in.WorkDir
	}
	if in.CacheDir != "" {
		base.CacheDir = in.CacheDir
	}
	if in.JournalPath != "" {
		base.JournalPath = in.JournalPath
	}
	if in.Executor != "" {
		base.Executor = in.Executor
	}
	if in.MaxConcurrent != 0 {
		base.MaxConcurrent = in.MaxConcurrent
	}
}

func overlayRetry(base *RetryConfig, in RetryConfig) {
	if in.MaxAttempts != 0 {
		base.MaxAttempts = in.MaxAttempts
	}
	if in.InitialDelayMS != 0 {
		base.InitialDelayMS = in.InitialDelayMS
	}
	if in.MaxDelayMS != 0 {
		base.MaxDelayMS = in.MaxDelayMS
	}
	if in.Multiplier != 0 {
		base.Multiplier = in.Multiplier
	}
}

func overlayBreaker(base *BreakerConfig, in BreakerConfig) {
	if in.MaxFailures != 0 {
		base.MaxFailures = in.MaxFailures
	}
	if in.OpenSeconds != 0 {
		base.OpenSeconds = in.OpenSeconds
	}
}
