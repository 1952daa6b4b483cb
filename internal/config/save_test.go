package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesFile(t *testing.T) {
	// Create temp directory
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	// Create test config
	cfg := &EngineConfig{
		Run: RunConfig{WorkDir: "scratch", MaxConcurrent: 4},
		Executors: map[string]ExecutorConfig{
			"test": {Type: "local"},
		},
		Stages: map[string]StageConfig{},
	}

	// Save config
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}

	// Verify file contains valid JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded EngineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}

	// Verify executor was saved
	if loaded.Executors["test"].Type != "local" {
		t.Errorf("Expected executor type 'local', got '%s'", loaded.Executors["test"].Type)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	// Create temp directory
	tmpDir := t.TempDir()
	// Nested path that doesn't exist yet
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	// Create minimal config
	cfg := &EngineConfig{
		Executors: map[string]ExecutorConfig{},
		Stages:    map[string]StageConfig{},
	}

	// Save should create all parent directories
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}

	// Verify parent directories exist
	parentDir := filepath.Dir(path)
	if _, err := os.Stat(parentDir); os.IsNotExist(err) {
		t.Fatalf("Parent directory was not created: %s", parentDir)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	// Create temp directory
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	// Create config with diverse fields
	cfg := &EngineConfig{
		Run: RunConfig{
			WorkDir:       "scratch",
			Executor:      "slurm",
			MaxConcurrent: 64,
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialDelayMS: 200,
			Multiplier:     1.5,
		},
		Executors: map[string]ExecutorConfig{
			"local": {Type: "local"},
			"slurm": {
				Type:             "grid",
				GridName:         "slurm",
				SubmitCmd:        []string{"sbatch", "--parsable"},
				KillCmd:          []string{"scancel"},
				StatusCmd:        []string{"squeue", "-j"},
				PollIntervalMS:   2000,
				SubmitRatePerSec: 10,
			},
		},
		Stages: map[string]StageConfig{
			"align": {
				Executor:      "slurm",
				CPUs:          8,
				MemoryMB:      16384,
				Strategy:      "retry",
				MaxAttempts:   3,
				MaxConcurrent: 20,
			},
			"report": {
				Strategy: "ignore",
			},
		},
	}

	// Save config
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Load it back
	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify executors
	if len(loaded.Executors["slurm"].SubmitCmd) != 2 || loaded.Executors["slurm"].SubmitCmd[0] != "sbatch" {
		t.Errorf("Slurm submit command mismatch: got %v", loaded.Executors["slurm"].SubmitCmd)
	}
	if loaded.Executors["slurm"].PollIntervalMS != 2000 {
		t.Errorf("Slurm poll interval mismatch: got %d", loaded.Executors["slurm"].PollIntervalMS)
	}

	// Verify stage overrides
	if loaded.Stages["align"].CPUs != 8 {
		t.Errorf("Align CPUs mismatch: got %d", loaded.Stages["align"].CPUs)
	}
	if loaded.Stages["align"].Executor != "slurm" {
		t.Errorf("Align executor mismatch: got '%s'", loaded.Stages["align"].Executor)
	}
	if loaded.Stages["report"].Strategy != "ignore" {
		t.Errorf("Report strategy mismatch: got '%s'", loaded.Stages["report"].Strategy)
	}

	// Verify run settings
	if loaded.Run.MaxConcurrent != 64 {
		t.Errorf("MaxConcurrent mismatch: got %d", loaded.Run.MaxConcurrent)
	}
	if loaded.Retry.Multiplier != 1.5 {
		t.Errorf("Retry multiplier mismatch: got %f", loaded.Retry.Multiplier)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	// Create temp directory
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	// Save first config
	cfg1 := &EngineConfig{
		Run:       RunConfig{WorkDir: "first-value"},
		Executors: map[string]ExecutorConfig{},
		Stages:    map[string]StageConfig{},
	}
	if err := Save(cfg1, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	// Save second config with different values
	cfg2 := &EngineConfig{
		Run:       RunConfig{WorkDir: "second-value"},
		Executors: map[string]ExecutorConfig{},
		Stages:    map[string]StageConfig{},
	}
	if err := Save(cfg2, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	// Load and verify second value wins
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded EngineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if loaded.Run.WorkDir != "second-value" {
		t.Errorf("Expected 'second-value', got '%s'", loaded.Run.WorkDir)
	}
}
