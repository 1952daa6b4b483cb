package config

// RunConfig holds engine-wide paths and caps.
type RunConfig struct {
	WorkDir       string `json:"work_dir,omitempty"`       // Task directory root (default "work")
	CacheDir      string `json:"cache_dir,omitempty"`      // Result cache location
	JournalPath   string `json:"journal_path,omitempty"`   // Run journal database
	Executor      string `json:"executor,omitempty"`       // Default executor, key into Executors
	MaxConcurrent int    `json:"max_concurrent,omitempty"` // Global cap on concurrently running tasks
}

// RetryConfig holds run-wide defaults for stages using the retry strategy.
// Delays grow geometrically from InitialDelayMS up to MaxDelayMS.
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts,omitempty"`     // Total attempts including the first
	InitialDelayMS int     `json:"initial_delay_ms,omitempty"` // Delay before the first retry
	MaxDelayMS     int     `json:"max_delay_ms,omitempty"`     // Ceiling on inter-attempt delay
	Multiplier     float64 `json:"multiplier,omitempty"`       // Delay growth factor
}

// BreakerConfig tunes the per-executor submission circuit breaker.
type BreakerConfig struct {
	MaxFailures int `json:"max_failures,omitempty"` // Consecutive submit failures before opening
	OpenSeconds int `json:"open_seconds,omitempty"` // How long the breaker stays open before probing
}

// ExecutorConfig defines one execution backend. Executors are separate from
// stages -- multiple stages can share one executor.
type ExecutorConfig struct {
	Type             string   `json:"type"`                          // Executor type matching executor.Config.Type: "local", "grid"
	GridName         string   `json:"grid_name,omitempty"`           // Label for logs, e.g. "slurm"
	SubmitCmd        []string `json:"submit_cmd,omitempty"`          // e.g. ["sbatch", "--parsable"]
	KillCmd          []string `json:"kill_cmd,omitempty"`            // e.g. ["scancel"]
	StatusCmd        []string `json:"status_cmd,omitempty"`          // Liveness probe; exit 0 means still running
	PollIntervalMS   int      `json:"poll_interval_ms,omitempty"`    // Completion poll cadence
	SubmitRatePerSec float64  `json:"submit_rate_per_sec,omitempty"` // Submission throttle, 0 = unlimited
	SubmitBurst      int      `json:"submit_burst,omitempty"`
}

// StageConfig overrides execution settings for one stage by name.
type StageConfig struct {
	Executor      string `json:"executor,omitempty"` // Key into Executors map
	CPUs          int    `json:"cpus,omitempty"`
	MemoryMB      int    `json:"memory_mb,omitempty"`
	TimeLimitSec  int    `json:"time_limit_sec,omitempty"`
	Strategy      string `json:"strategy,omitempty"` // Failure handling: "terminate", "ignore", "finish", "retry"
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"` // Per-stage running-task cap, 0 = unlimited
}

// EngineConfig is the top-level configuration.
type EngineConfig struct {
	Run       RunConfig                 `json:"run"`
	Retry     RetryConfig               `json:"retry"`
	Breaker   BreakerConfig             `json:"breaker"`
	Executors map[string]ExecutorConfig `json:"executors"`
	Stages    map[string]StageConfig    `json:"stages"`
}
