package config

import "path/filepath"

// DefaultConfig returns the default configuration with a built-in local
// executor and conservative retry and breaker settings.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Run: RunConfig{
			WorkDir:       "work",
			CacheDir:      filepath.Join(".flowrun", "cache"),
			JournalPath:   filepath.Join(".flowrun", "journal.db"),
			Executor:      "local",
			MaxConcurrent: 8,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMS: 500,
			MaxDelayMS:     30000,
			Multiplier:     2.0,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			OpenSeconds: 30,
		},
		Executors: map[string]ExecutorConfig{
			"local": {
				Type: "local",
			},
		},
		Stages: map[string]StageConfig{},
	}
}
