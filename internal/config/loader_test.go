package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		globalConfig    *EngineConfig
		projectConfig   *EngineConfig
		expectExecutors int
		expectStages    int
		checkExecutor   string
		expectType      string
		checkStage      string
		expectStrategy  string
		expectMaxConc   int
	}{
		{
			name:            "No config files - returns defaults",
			globalConfig:    nil,
			projectConfig:   nil,
			expectExecutors: 1,
			expectStages:    0,
			expectMaxConc:   8,
		},
		{
			name: "Global only - adds grid executor",
			globalConfig: &EngineConfig{
				Executors: map[string]ExecutorConfig{
					"slurm": {
						Type:      "grid",
						GridName:  "slurm",
						SubmitCmd: []string{"sbatch", "--parsable"},
						KillCmd:   []string{"scancel"},
					},
				},
			},
			projectConfig:   nil,
			expectExecutors: 2, // local default + slurm
			expectStages:    0,
			checkExecutor:   "slurm",
			expectType:      "grid",
			expectMaxConc:   8,
		},
		{
			name:         "Project only - stage override plus cap",
			globalConfig: nil,
			projectConfig: &EngineConfig{
				Run: RunConfig{MaxConcurrent: 32},
				Stages: map[string]StageConfig{
					"align": {Strategy: "retry", MaxAttempts: 5, CPUs: 8},
				},
			},
			expectExecutors: 1,
			expectStages:    1,
			checkStage:      "align",
			expectStrategy:  "retry",
			expectMaxConc:   32,
		},
		{
			name: "Both with merge - global adds, project overrides",
			globalConfig: &EngineConfig{
				Run: RunConfig{MaxConcurrent: 16},
				Executors: map[string]ExecutorConfig{
					"slurm": {Type: "grid", SubmitCmd: []string{"sbatch"}},
				},
				Stages: map[string]StageConfig{
					"align": {Strategy: "ignore"},
				},
			},
			projectConfig: &EngineConfig{
				Run: RunConfig{MaxConcurrent: 4},
				Stages: map[string]StageConfig{
					"align": {Strategy: "retry", MaxAttempts: 2},
				},
			},
			expectExecutors: 2,
			expectStages:    1,
			checkStage:      "align",
			expectStrategy:  "retry", // project wins
			expectMaxConc:   4,       // project wins
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temp directory for test configs
			tmpDir := t.TempDir()

			// Write global config if specified
			globalPath := ""
			if tt.globalConfig != nil {
				globalPath = filepath.Join(tmpDir, "global.json")
				data, err := json.Marshal(tt.globalConfig)
				if err != nil {
					t.Fatalf("marshaling global config: %v", err)
				}
				if err := os.WriteFile(globalPath, data, 0644); err != nil {
					t.Fatalf("writing global config: %v", err)
				}
			}

			// Write project config if specified
			projectPath := ""
			if tt.projectConfig != nil {
				projectPath = filepath.Join(tmpDir, "project.json")
				data, err := json.Marshal(tt.projectConfig)
				if err != nil {
					t.Fatalf("marshaling project config: %v", err)
				}
				if err := os.WriteFile(projectPath, data, 0644); err != nil {
					t.Fatalf("writing project config: %v", err)
				}
			}

			// Load config
			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Verify counts
			if got := len(cfg.Executors); got != tt.expectExecutors {
				t.Errorf("executors count = %d, want %d", got, tt.expectExecutors)
			}
			if got := len(cfg.Stages); got != tt.expectStages {
				t.Errorf("stages count = %d, want %d", got, tt.expectStages)
			}
			if cfg.Run.MaxConcurrent != tt.expectMaxConc {
				t.Errorf("max_concurrent = %d, want %d", cfg.Run.MaxConcurrent, tt.expectMaxConc)
			}

			// Verify specific executor if specified
			if tt.checkExecutor != "" {
				ex, exists := cfg.Executors[tt.checkExecutor]
				if !exists {
					t.Errorf("expected executor %q not found", tt.checkExecutor)
					return
				}
				if ex.Type != tt.expectType {
					t.Errorf("executor %q type = %q, want %q", tt.checkExecutor, ex.Type, tt.expectType)
				}
			}

			// Verify specific stage override if specified
			if tt.checkStage != "" {
				st, exists := cfg.Stages[tt.checkStage]
				if !exists {
					t.Errorf("expected stage %q not found", tt.checkStage)
					return
				}
				if st.Strategy != tt.expectStrategy {
					t.Errorf("stage %q strategy = %q, want %q", tt.checkStage, st.Strategy, tt.expectStrategy)
				}
			}
		})
	}
}

func TestLoad_ScalarDefaultsSurvive(t *testing.T) {
	tmpDir := t.TempDir()

	// A config that only sets one field must not clobber the other defaults.
	projectPath := filepath.Join(tmpDir, "project.json")
	if err := os.WriteFile(projectPath, []byte(`{"run":{"work_dir":"scratch"}}`), 0644); err != nil {
		t.Fatalf("writing project config: %v", err)
	}

	cfg, err := Load("", projectPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Run.WorkDir != "scratch" {
		t.Errorf("work_dir = %q, want %q", cfg.Run.WorkDir, "scratch")
	}
	if cfg.Run.MaxConcurrent != 8 {
		t.Errorf("max_concurrent = %d, want default 8", cfg.Run.MaxConcurrent)
	}
	if cfg.Run.Executor != "local" {
		t.Errorf("executor = %q, want default %q", cfg.Run.Executor, "local")
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry max_attempts = %d, want default 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Breaker.MaxFailures != 5 {
		t.Errorf("breaker max_failures = %d, want default 5", cfg.Breaker.MaxFailures)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	// Create malformed JSON file
	globalPath := filepath.Join(tmpDir, "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	// Load should return error
	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}

	// Error should mention the file
	if err.Error() == "" {
		t.Error("expected descriptive error message")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	// Load with non-existent paths should not error
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	// Should return defaults
	if len(cfg.Executors) != 1 {
		t.Errorf("executors count = %d, want 1", len(cfg.Executors))
	}
	if cfg.Run.WorkDir != "work" {
		t.Errorf("work_dir = %q, want %q", cfg.Run.WorkDir, "work")
	}
}
