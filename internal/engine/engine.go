// Package engine assembles and runs one pipeline. It overlays engine
// configuration onto the stage graph, opens the result cache, work tree,
// and run journal, builds executors behind per-executor circuit breakers,
// and drives the scheduler from start to the final report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/flowrun-io/flowrun/internal/cache"
	"github.com/flowrun-io/flowrun/internal/config"
	"github.com/flowrun-io/flowrun/internal/events"
	"github.com/flowrun-io/flowrun/internal/executor"
	"github.com/flowrun-io/flowrun/internal/graph"
	"github.com/flowrun-io/flowrun/internal/journal"
	"github.com/flowrun-io/flowrun/internal/scheduler"
	"github.com/flowrun-io/flowrun/internal/workdir"
)

// Options configures an Engine.
type Options struct {
	// Config supplies paths, executor definitions, and per-stage
	// overrides. Nil uses config.DefaultConfig().
	Config *config.EngineConfig

	// Graph is the assembled pipeline. Required. Per-stage configuration
	// overrides are applied to it before the run starts.
	Graph *graph.Graph

	// Bus carries run events to observers. Created if nil. Run closes it
	// when the run ends either way.
	Bus *events.Bus

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Resume lets recorded results satisfy tasks without executing.
	Resume bool

	// RunID names the run in the journal. A fresh UUID when empty.
	RunID string
}

// RunReport summarizes one finished run.
type RunReport struct {
	RunID    string
	Tasks    scheduler.Report
	Started  time.Time
	Finished time.Time
}

// Engine owns the run-scoped resources around a scheduler: result cache,
// work tree, journal, executors, and their circuit breakers.
type Engine struct {
	cfg    *config.EngineConfig
	graph  *graph.Graph
	bus    *events.Bus
	logger *slog.Logger
	resume bool
	runID  string

	store     *cache.Store
	workdirs  *workdir.Manager
	journal   journal.Journal
	procs     *executor.ProcessManager
	executors map[string]executor.Executor
	breakers  *BreakerRegistry
}

// New validates the pipeline against the configuration and opens every
// run-scoped resource. The caller owns the engine and must Close it.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Graph == nil {
		return nil, errors.New("engine: graph is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	order, err := opts.Graph.Validate()
	if err != nil {
		return nil, fmt.Errorf("engine: invalid pipeline: %w", err)
	}
	logger.Debug("pipeline validated", "stages", order)

	if err := applyStageConfig(opts.Graph, cfg); err != nil {
		return nil, err
	}
	if err := checkExecutorRefs(opts.Graph, cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		graph:  opts.Graph,
		bus:    bus,
		logger: logger,
		resume: opts.Resume,
		runID:  runID,
	}

	e.store, err = cache.Open(cache.Options{Path: cfg.Run.CacheDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("engine: open cache: %w", err)
	}
	e.workdirs = workdir.NewManager(cfg.Run.WorkDir)

	e.journal, err = journal.Open(ctx, cfg.Run.JournalPath)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("engine: open journal: %w", err)
	}

	e.procs = executor.NewProcessManager()
	e.executors = make(map[string]executor.Executor, len(cfg.Executors)+1)
	for name, ec := range cfg.Executors {
		ex, err := executor.New(executorConfig(name, ec), e.procs, logger)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("engine: executor %q: %w", name, err)
		}
		e.executors[name] = ex
	}
	if _, ok := e.executors["local"]; !ok {
		e.executors["local"] = executor.NewLocal(e.procs, logger)
	}
	e.breakers = NewBreakerRegistry(cfg.Breaker, logger)

	return e, nil
}

// Run drives the pipeline to completion. Task transitions stream from the
// bus into the journal while the scheduler works; the bus is closed before
// Run returns, the other resources stay open until Close.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	started := time.Now()
	sched, err := scheduler.New(scheduler.Options{
		Graph:         e.graph,
		Cache:         e.store,
		WorkDirs:      e.workdirs,
		Submit:        e.submitTask,
		Bus:           e.bus,
		Logger:        e.logger,
		MaxConcurrent: e.cfg.Run.MaxConcurrent,
		Resume:        e.resume,
		Retry:         retryConfig(e.cfg.Retry),
	})
	if err != nil {
		e.bus.Close()
		return RunReport{RunID: e.runID, Started: started, Finished: time.Now()}, err
	}

	if err := e.journal.BeginRun(ctx, e.runID, started); err != nil {
		e.logger.Warn("journal begin failed", "run", e.runID, "error", err)
	}
	rec := journal.NewRecorder(e.journal, e.runID, e.logger)
	go rec.Run(e.bus.SubscribeAll(1024))

	e.logger.Info("run starting", "run", e.runID, "resume", e.resume)
	tasks, runErr := sched.Run(ctx)

	e.bus.Close()
	rec.Wait()

	finished := time.Now()
	status := "completed"
	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = "cancelled"
	case runErr != nil:
		status = "failed"
	}
	counts := journal.RunCounts{
		Completed: tasks.Completed,
		Cached:    tasks.Cached,
		Failed:    tasks.Failed,
	}
	// The run context may already be cancelled; the final journal write
	// gets its own.
	if err := e.journal.FinishRun(context.Background(), e.runID, status, runErr, counts); err != nil {
		e.logger.Warn("journal finish failed", "run", e.runID, "error", err)
	}

	e.logger.Info("run finished",
		"run", e.runID,
		"status", status,
		"completed", tasks.Completed,
		"cached", tasks.Cached,
		"failed", tasks.Failed,
		"cancelled", tasks.Cancelled,
		"elapsed", finished.Sub(started).Round(time.Millisecond))

	return RunReport{RunID: e.runID, Tasks: tasks, Started: started, Finished: finished}, runErr
}

// Close releases every resource the engine opened. Safe on a partially
// constructed engine.
func (e *Engine) Close() error {
	var errs []error
	for name, ex := range e.executors {
		if err := ex.Close(); err != nil {
			errs = append(errs, fmt.Errorf("executor %s: %w", name, err))
		}
	}
	e.executors = nil
	if e.procs != nil {
		if err := e.procs.KillAll(); err != nil {
			errs = append(errs, err)
		}
		e.procs = nil
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		e.journal = nil
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
		e.store = nil
	}
	return errors.Join(errs...)
}

// Bus returns the engine's event bus for observers such as the TUI.
func (e *Engine) Bus() *events.Bus { return e.bus }

// RunID returns the journal identifier for this run.
func (e *Engine) RunID() string { return e.runID }

// submitTask binds the stage to its configured executor and submits
// through that executor's circuit breaker. An open breaker surfaces as a
// transient error so retrying stages back off instead of failing outright.
func (e *Engine) submitTask(ctx context.Context, stage string, spec executor.Spec) (executor.Handle, error) {
	name := executorFor(e.cfg, stage)
	ex, ok := e.executors[name]
	if !ok {
		return nil, &executor.PermanentError{Op: "submit", Err: fmt.Errorf("no executor named %q", name)}
	}
	res, err := e.breakers.Get(name).Execute(func() (interface{}, error) {
		return ex.Submit(ctx, spec)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &executor.TransientError{Op: "submit", Err: err}
		}
		return nil, err
	}
	return res.(executor.Handle), nil
}

// executorFor resolves a stage's executor name: the stage override, then
// the run default, then the built-in local executor.
func executorFor(cfg *config.EngineConfig, stage string) string {
	if sc, ok := cfg.Stages[stage]; ok && sc.Executor != "" {
		return sc.Executor
	}
	if cfg.Run.Executor != "" {
		return cfg.Run.Executor
	}
	return "local"
}

// executorConfig translates one configured executor into the executor
// package's form.
func executorConfig(name string, ec config.ExecutorConfig) executor.Config {
	gridName := ec.GridName
	if gridName == "" {
		gridName = name
	}
	return executor.Config{
		Type: ec.Type,
		Grid: executor.GridConfig{
			Name:             gridName,
			SubmitCmd:        ec.SubmitCmd,
			KillCmd:          ec.KillCmd,
			StatusCmd:        ec.StatusCmd,
			PollInterval:     time.Duration(ec.PollIntervalMS) * time.Millisecond,
			SubmitRatePerSec: ec.SubmitRatePerSec,
			SubmitBurst:      ec.SubmitBurst,
		},
	}
}

// retryConfig overlays configured retry settings onto the scheduler
// defaults; zero fields keep the default.
func retryConfig(rc config.RetryConfig) scheduler.RetryConfig {
	out := scheduler.DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		out.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialDelayMS > 0 {
		out.InitialInterval = time.Duration(rc.InitialDelayMS) * time.Millisecond
	}
	if rc.MaxDelayMS > 0 {
		out.MaxInterval = time.Duration(rc.MaxDelayMS) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		out.Multiplier = rc.Multiplier
	}
	return out
}

// applyStageConfig copies per-stage configuration overrides onto the
// stage definitions before the run starts.
func applyStageConfig(g *graph.Graph, cfg *config.EngineConfig) error {
	for _, def := range g.Stages() {
		sc, ok := cfg.Stages[def.Name]
		if !ok {
			continue
		}
		if sc.CPUs > 0 {
			def.Resources.CPUs = sc.CPUs
		}
		if sc.MemoryMB > 0 {
			def.Resources.MemoryMB = int64(sc.MemoryMB)
		}
		if sc.TimeLimitSec > 0 {
			def.Resources.TimeLimit = time.Duration(sc.TimeLimitSec) * time.Second
		}
		if sc.Strategy != "" {
			strat, err := graph.ParseStrategy(sc.Strategy)
			if err != nil {
				return fmt.Errorf("engine: stage %q: %w", def.Name, err)
			}
			def.Strategy = strat
		}
		if sc.MaxAttempts > 0 {
			def.MaxAttempts = sc.MaxAttempts
		}
		if sc.MaxConcurrent > 0 {
			def.MaxConcurrent = sc.MaxConcurrent
		}
	}
	return nil
}

// checkExecutorRefs verifies every stage resolves to a configured
// executor. The local executor always exists.
func checkExecutorRefs(g *graph.Graph, cfg *config.EngineConfig) error {
	for _, def := range g.Stages() {
		name := executorFor(cfg, def.Name)
		if name == "local" {
			continue
		}
		if _, ok := cfg.Executors[name]; !ok {
			return fmt.Errorf("engine: stage %q references unknown executor %q", def.Name, name)
		}
	}
	return nil
}
