// Package scheduler drives tasks from readiness to a terminal status. A
// single control loop consumes graph firings, resolves each against the
// result cache, submits misses to executors through a caller-provided
// submit function, and applies stage error strategies to failures. The loop
// owns all task state; executor monitors and retry timers talk to it only
// through an internal message channel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/flowrun-io/flowrun/internal/cache"
	"github.com/flowrun-io/flowrun/internal/events"
	"github.com/flowrun-io/flowrun/internal/executor"
	"github.com/flowrun-io/flowrun/internal/graph"
	"github.com/flowrun-io/flowrun/internal/hashkey"
	"github.com/flowrun-io/flowrun/internal/values"
)

// SubmitFunc hands a resolved task spec to an executor and returns a handle
// for it. The engine layer binds stage names to concrete executors and
// wraps submission in the backend circuit breaker.
type SubmitFunc func(ctx context.Context, stage string, spec executor.Spec) (executor.Handle, error)

// ResultCache is the slice of the result cache the scheduler touches.
type ResultCache interface {
	Lookup(key hashkey.Key) (*cache.Entry, bool, error)
	Record(e *cache.Entry) error
}

// WorkDirs provisions task working directories keyed by hash.
type WorkDirs interface {
	Create(key hashkey.Key) (string, error)
}

// RetryConfig shapes the backoff between attempts of retrying stages.
type RetryConfig struct {
	// MaxAttempts is the submission ceiling for retrying stages that do
	// not set their own. Zero or negative means a single attempt.
	MaxAttempts int

	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig matches the engine's configuration defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Options configures a Scheduler.
type Options struct {
	// Graph supplies firings and receives published outputs. Required.
	Graph *graph.Graph

	// Cache is consulted before submission and written after success.
	// Required.
	Cache ResultCache

	// WorkDirs provisions per-task working directories. Required.
	WorkDirs WorkDirs

	// Submit hands tasks to executors. Required.
	Submit SubmitFunc

	// Bus receives run events. Optional.
	Bus *events.Bus

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// MaxConcurrent caps run-wide in-flight tasks. Defaults to 8.
	MaxConcurrent int

	// Resume lets recorded results satisfy tasks without executing.
	// Concurrent duplicate-key coalescing applies regardless.
	Resume bool

	// Retry shapes retry backoff and the default attempts ceiling.
	Retry RetryConfig
}

// Report summarizes a finished run.
type Report struct {
	Total     int // tasks admitted
	Completed int // executed to success
	Cached    int // satisfied without executing
	Failed    int // terminally failed
	Cancelled int // stopped before a result
	Submitted int // executor submissions, counting retries
}

// runMode sequences the run's shutdown. Active runs submit freely; a
// finishing run drains in-flight tasks without starting new ones; an
// aborting run tells executor monitors to give up as well.
type runMode int

const (
	runActive runMode = iota
	runFinishing
	runAborting
)

// loopMsg is a message into the control loop.
type loopMsg interface{ isLoopMsg() }

// taskDone reports that an executor attempt finished.
type taskDone struct {
	task *Task
	res  *executor.Result
	err  error
}

// retryDue reports that a task's backoff delay expired.
type retryDue struct{ task *Task }

func (taskDone) isLoopMsg() {}
func (retryDue) isLoopMsg() {}

// inflightEntry tracks the task executing a hash key and any duplicates
// waiting on its outcome.
type inflightEntry struct {
	leader    *Task
	followers []*Task
}

// Scheduler owns the run control loop. Build one per run with New; Run may
// be called once.
type Scheduler struct {
	graph    *graph.Graph
	cache    ResultCache
	workdirs WorkDirs
	submit   SubmitFunc
	bus      *events.Bus
	logger   *slog.Logger
	resume   bool
	retry    RetryConfig

	globalSem *semaphore.Weighted
	stageSems map[string]*semaphore.Weighted

	// msgs carries monitor completions and retry expirations into the
	// loop. Everything below is owned by the loop goroutine.
	msgs chan loopMsg

	intake       []graph.Firing
	queue        []*Task
	inflight     map[hashkey.Key]*inflightEntry
	pendingRetry map[*Task]*time.Timer
	running      int
	mode         runMode
	abortErr     *RunAbortError
	closedStages map[string]bool
	lastProgress events.RunProgressEvent
	report       Report

	monCtx    context.Context
	monCancel context.CancelFunc
}

// New builds a Scheduler over an assembled graph.
func New(opts Options) (*Scheduler, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("scheduler requires a graph")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("scheduler requires a result cache")
	}
	if opts.WorkDirs == nil {
		return nil, fmt.Errorf("scheduler requires a workdir manager")
	}
	if opts.Submit == nil {
		return nil, fmt.Errorf("scheduler requires a submit function")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 500 * time.Millisecond
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = 30 * time.Second
	}
	if retry.Multiplier <= 0 {
		retry.Multiplier = 2.0
	}

	s := &Scheduler{
		graph:        opts.Graph,
		cache:        opts.Cache,
		workdirs:     opts.WorkDirs,
		submit:       opts.Submit,
		bus:          opts.Bus,
		logger:       logger,
		resume:       opts.Resume,
		retry:        retry,
		globalSem:    semaphore.NewWeighted(int64(maxConcurrent)),
		stageSems:    make(map[string]*semaphore.Weighted),
		msgs:         make(chan loopMsg, 256),
		inflight:     make(map[hashkey.Key]*inflightEntry),
		pendingRetry: make(map[*Task]*time.Timer),
		closedStages: make(map[string]bool),
	}
	for _, def := range opts.Graph.Stages() {
		if def.MaxConcurrent > 0 {
			s.stageSems[def.Name] = semaphore.NewWeighted(int64(def.MaxConcurrent))
		}
	}
	return s, nil
}

// Run drives the graph until no admitted task can change status anymore and
// returns the run summary. Cancelling ctx aborts the run: queued and
// waiting tasks are cancelled, executor monitors are told to give up, and
// Run returns once every monitor has reported back.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	s.monCtx, s.monCancel = context.WithCancel(context.Background())
	defer s.monCancel()

	err := s.graph.Start(func(f graph.Firing) {
		s.intake = append(s.intake, f)
	})
	if err != nil {
		return s.report, fmt.Errorf("failed to start graph: %w", err)
	}
	s.announceClosures()

	for {
		s.drainIntake()
		s.pump(ctx)
		s.publishProgress()
		if s.done() {
			break
		}
		if s.mode == runActive {
			select {
			case msg := <-s.msgs:
				s.handle(msg)
			case <-ctx.Done():
				s.beginAbort(nil, ctx.Err())
			}
		} else {
			s.handle(<-s.msgs)
		}
	}

	s.announceClosures()
	s.publishProgress()
	if s.abortErr != nil {
		return s.report, s.abortErr
	}
	return s.report, nil
}

// handle dispatches one loop message.
func (s *Scheduler) handle(msg loopMsg) {
	switch m := msg.(type) {
	case taskDone:
		s.completeAttempt(m.task, m.res, m.err)
	case retryDue:
		s.retryNow(m.task)
	}
}

// done reports whether the loop can exit. An active run ends when the graph
// has quiesced and no task is queued, running, or waiting out a backoff; a
// finishing or aborting run ends when the last monitor reports back.
func (s *Scheduler) done() bool {
	if s.mode == runActive {
		return len(s.intake) == 0 && len(s.queue) == 0 && s.running == 0 &&
			len(s.pendingRetry) == 0 && s.graph.Quiesced()
	}
	return s.running == 0
}

// drainIntake admits firings collected by the readiness callback, in
// detection order.
func (s *Scheduler) drainIntake() {
	for len(s.intake) > 0 {
		f := s.intake[0]
		s.intake = s.intake[1:]
		s.admit(f)
	}
}

// admit moves a fresh firing into the run. Outside active mode new work is
// cancelled on arrival.
func (s *Scheduler) admit(f graph.Firing) {
	t := newTask(f)
	s.report.Total++
	if s.mode != runActive {
		s.cancelTask(t)
		return
	}
	s.cacheCheck(t)
}

// cacheCheck resolves the task's identity and routes it: duplicates of an
// in-flight key wait on its outcome, recorded results replay without
// executing, everything else queues for submission.
func (s *Scheduler) cacheCheck(t *Task) {
	t.Status = TaskCacheCheck

	if t.Key.IsZero() {
		params := make([]hashkey.Param, 0, len(t.Inputs))
		for _, b := range t.Inputs {
			params = append(params, hashkey.Param{Name: b.Name, Value: b.Value})
		}
		key, err := hashkey.Compute(hashkey.StageIdentity{
			Name:    t.Stage.Name,
			Command: t.Stage.Command,
			Env:     t.Stage.Env,
		}, params)
		if err != nil {
			t.Attempts++
			s.failAttempt(t, err)
			return
		}
		t.Key = key
	}

	if e, ok := s.inflight[t.Key]; ok {
		// Same key already underway: wait for that outcome instead of
		// running the same work twice.
		e.followers = append(e.followers, t)
		t.Status = TaskQueued
		s.publish(events.TopicTask, events.TaskQueuedEvent{
			ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
			Key: t.Key.String(), Attempt: 1, Timestamp: time.Now(),
		})
		return
	}

	if s.resume {
		entry, ok, err := s.cache.Lookup(t.Key)
		if err != nil {
			s.logger.Warn("cache lookup failed, treating as miss",
				"stage", t.Stage.Name, "key", t.Key.Short(), "error", err)
		} else if ok {
			s.satisfyFromCache(t, entry)
			return
		}
	}

	s.inflight[t.Key] = &inflightEntry{leader: t}
	t.Status = TaskQueued
	s.queue = append(s.queue, t)
	s.publish(events.TopicTask, events.TaskQueuedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: t.Key.String(), Attempt: 1, Timestamp: time.Now(),
	})
}

// satisfyFromCache finishes a task from a recorded result, replaying its
// outputs downstream.
func (s *Scheduler) satisfyFromCache(t *Task, entry *cache.Entry) {
	t.Status = TaskCached
	t.WorkDir = entry.WorkDir
	t.FinishedAt = time.Now()
	s.report.Cached++
	s.publish(events.TopicTask, events.TaskCachedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: t.Key.String(), Timestamp: time.Now(),
	})
	s.publishOutputs(t, entry.Outputs)
	s.retireFiring(t)
}

// pump submits queued tasks while concurrency slots allow, preserving queue
// order among eligible tasks. Tasks blocked only on their stage's own cap
// are skipped so a saturated stage cannot stall the rest of the queue.
func (s *Scheduler) pump(ctx context.Context) {
	if s.mode != runActive {
		return
	}
	i := 0
	for i < len(s.queue) {
		if !s.globalSem.TryAcquire(1) {
			return
		}
		t := s.queue[i]
		if sem := s.stageSems[t.Stage.Name]; sem != nil && !sem.TryAcquire(1) {
			s.globalSem.Release(1)
			i++
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.submitTask(ctx, t)
		if s.mode != runActive {
			return
		}
	}
}

// submitTask hands one task to its executor. Failures before the executor
// accepts the work settle the attempt inline.
func (s *Scheduler) submitTask(ctx context.Context, t *Task) {
	t.Attempts++
	t.Status = TaskRunning
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	s.running++
	s.report.Submitted++
	s.publish(events.TopicTask, events.TaskStartedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: t.Key.String(), Attempt: t.Attempts, Timestamp: time.Now(),
	})

	dir, err := s.workdirs.Create(t.Key)
	if err != nil {
		s.completeAttempt(t, nil, &executor.TransientError{Op: "workdir create", Err: err})
		return
	}
	t.WorkDir = dir

	spec, err := s.taskSpec(t)
	if err != nil {
		s.completeAttempt(t, nil, &executor.PermanentError{Op: "task spec", Err: err})
		return
	}

	handle, err := s.submit(ctx, t.Stage.Name, spec)
	if err != nil {
		s.completeAttempt(t, nil, err)
		return
	}

	go func() {
		res, werr := handle.Wait(s.monCtx)
		s.msgs <- taskDone{task: t, res: res, err: werr}
	}()
}

// completeAttempt settles one executor attempt on the control loop.
func (s *Scheduler) completeAttempt(t *Task, res *executor.Result, err error) {
	s.running--
	s.globalSem.Release(1)
	if sem := s.stageSems[t.Stage.Name]; sem != nil {
		sem.Release(1)
	}

	if s.mode == runAborting {
		// The run stopped before this result was known good; it leaves
		// no cache entry.
		s.cancelTask(t)
		return
	}
	if err == nil {
		s.completeTask(t, res)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.cancelTask(t)
		return
	}
	s.failAttempt(t, err)
}

// completeTask records a success, publishes its outputs downstream, and
// releases any duplicates waiting on the same key.
func (s *Scheduler) completeTask(t *Task, res *executor.Result) {
	t.Status = TaskCompleted
	t.FinishedAt = time.Now()
	s.report.Completed++

	entry := &cache.Entry{
		Key:       t.Key,
		Stage:     t.Stage.Name,
		TaskID:    t.ID,
		ExitCode:  res.ExitCode,
		WorkDir:   t.WorkDir,
		Outputs:   res.Outputs,
		Runtime:   res.Duration,
		CreatedAt: time.Now(),
	}
	if err := s.cache.Record(entry); err != nil {
		s.logger.Warn("cache record failed",
			"stage", t.Stage.Name, "key", t.Key.Short(), "error", err)
	}

	s.publish(events.TopicTask, events.TaskCompletedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: t.Key.String(), Duration: res.Duration, Timestamp: time.Now(),
	})
	s.publishOutputs(t, res.Outputs)
	s.retireFiring(t)
	s.resolveFollowers(t, entry)
}

// failAttempt applies the stage's error strategy to one failed attempt.
// Permanent backend faults skip any remaining attempts.
func (s *Scheduler) failAttempt(t *Task, err error) {
	t.Err = err
	if t.Stage.Strategy == graph.StrategyRetry &&
		!executor.IsPermanent(err) &&
		t.Attempts < s.attemptCeiling(t.Stage) {
		s.scheduleRetry(t, err)
		return
	}
	s.failFinal(t, err)
}

func (s *Scheduler) attemptCeiling(def *graph.StageDefinition) int {
	if def.MaxAttempts > 0 {
		return def.MaxAttempts
	}
	return s.retry.MaxAttempts
}

// scheduleRetry arms a backoff timer for the task's next attempt.
func (s *Scheduler) scheduleRetry(t *Task, err error) {
	if t.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.retry.InitialInterval
		b.MaxInterval = s.retry.MaxInterval
		b.Multiplier = s.retry.Multiplier
		b.RandomizationFactor = s.retry.RandomizationFactor
		b.MaxElapsedTime = 0 // the attempts ceiling bounds retries, not wall time
		b.Reset()
		t.backoff = b
	}
	delay := t.backoff.NextBackOff()
	if delay == backoff.Stop {
		s.failFinal(t, err)
		return
	}

	s.publish(events.TopicTask, events.TaskFailedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: eventKey(t.Key), Err: err, Attempt: t.Attempts,
		Final: false, Timestamp: time.Now(),
	})
	s.publish(events.TopicTask, events.TaskRetriedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Attempt: t.Attempts + 1, Delay: delay, Timestamp: time.Now(),
	})
	s.logger.Warn("task attempt failed, retrying",
		"stage", t.Stage.Name, "task", t.ID, "attempt", t.Attempts,
		"delay", delay, "error", err)

	s.pendingRetry[t] = time.AfterFunc(delay, func() {
		select {
		case s.msgs <- retryDue{task: t}:
		case <-s.monCtx.Done():
		}
	})
}

// retryNow requeues a task whose backoff delay expired. A task no longer in
// the pending set was cancelled while its timer fired.
func (s *Scheduler) retryNow(t *Task) {
	if _, ok := s.pendingRetry[t]; !ok {
		return
	}
	delete(s.pendingRetry, t)

	t.Status = TaskQueued
	s.publish(events.TopicTask, events.TaskQueuedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: eventKey(t.Key), Attempt: t.Attempts + 1, Timestamp: time.Now(),
	})
	if t.Key.IsZero() {
		// Identity resolution failed last time; try it again.
		s.cacheCheck(t)
		return
	}
	s.queue = append(s.queue, t)
}

// failFinal marks a task terminally failed, then lets the stage strategy
// decide what happens to the rest of the run.
func (s *Scheduler) failFinal(t *Task, err error) {
	t.Status = TaskFailed
	t.Err = err
	t.FinishedAt = time.Now()
	s.report.Failed++
	s.publish(events.TopicTask, events.TaskFailedEvent{
		ID: t.ID, Stage: t.Stage.Name, Index: t.FireIndex,
		Key: eventKey(t.Key), Err: err, Attempt: t.Attempts,
		Final: true, Timestamp: time.Now(),
	})
	s.logger.Error("task failed",
		"stage", t.Stage.Name, "task", t.ID, "key", shortKey(t.Key),
		"workdir", t.WorkDir, "error", err)
	s.retireFiring(t)
	s.resolveFollowers(t, nil)

	switch t.Stage.Strategy {
	case graph.StrategyIgnore:
		// Downstream stages simply never see this firing's outputs.
	case graph.StrategyFinish:
		s.beginFinish(t, err)
	default:
		s.beginAbort(t, err)
	}
}

// cancelTask finalizes a task that will not produce a result.
func (s *Scheduler) cancelTask(t *Task) {
	t.Status = TaskCancelled
	t.FinishedAt = time.Now()
	s.report.Cancelled++
	s.retireFiring(t)
	s.resolveFollowers(t, nil)
}

// resolveFollowers settles duplicate-key tasks once their leader reached a
// terminal status. Success hands each the recorded entry; failure and
// cancellation propagate as-is, without re-running the stage strategy the
// leader already applied.
func (s *Scheduler) resolveFollowers(leader *Task, entry *cache.Entry) {
	e := s.inflight[leader.Key]
	if e == nil || e.leader != leader {
		return
	}
	delete(s.inflight, leader.Key)
	for _, f := range e.followers {
		switch {
		case entry != nil:
			s.satisfyFromCache(f, entry)
		case leader.Status == TaskCancelled:
			s.cancelTask(f)
		default:
			f.Status = TaskFailed
			f.Err = leader.Err
			f.FinishedAt = time.Now()
			s.report.Failed++
			s.publish(events.TopicTask, events.TaskFailedEvent{
				ID: f.ID, Stage: f.Stage.Name, Index: f.FireIndex,
				Key: eventKey(f.Key), Err: leader.Err, Attempt: leader.Attempts,
				Final: true, Timestamp: time.Now(),
			})
			s.retireFiring(f)
		}
	}
}

// beginFinish stops new submissions and drains in-flight tasks, recording
// their results as usual.
func (s *Scheduler) beginFinish(t *Task, reason error) {
	if s.mode != runActive {
		return
	}
	s.mode = runFinishing
	s.setAbortErr(t, reason)
	s.logger.Warn("finishing run, no new tasks will start",
		"stage", t.Stage.Name, "task", t.ID)
	s.cancelQueued()
	s.cancelRetries()
}

// beginAbort stops the run: queued and waiting tasks are cancelled and
// executor monitors are told to give up. A finishing run escalates to
// aborting; the first trigger keeps naming the run's failure.
func (s *Scheduler) beginAbort(t *Task, reason error) {
	if s.mode == runAborting {
		return
	}
	s.mode = runAborting
	s.setAbortErr(t, reason)
	if t != nil {
		s.logger.Error("aborting run",
			"stage", t.Stage.Name, "task", t.ID, "error", reason)
	} else {
		s.logger.Error("aborting run", "error", reason)
	}
	s.cancelQueued()
	s.cancelRetries()
	s.monCancel()
}

func (s *Scheduler) setAbortErr(t *Task, reason error) {
	if s.abortErr != nil {
		return
	}
	if t == nil {
		s.abortErr = &RunAbortError{Reason: reason}
		return
	}
	s.abortErr = &RunAbortError{
		TaskID:  t.ID,
		Stage:   t.Stage.Name,
		Key:     eventKey(t.Key),
		WorkDir: t.WorkDir,
		Reason:  reason,
	}
}

func (s *Scheduler) cancelQueued() {
	queued := s.queue
	s.queue = nil
	for _, t := range queued {
		s.cancelTask(t)
	}
}

func (s *Scheduler) cancelRetries() {
	pending := s.pendingRetry
	s.pendingRetry = make(map[*Task]*time.Timer)
	for t, timer := range pending {
		timer.Stop()
		s.cancelTask(t)
	}
}

// publishOutputs routes a task's outputs into the graph.
func (s *Scheduler) publishOutputs(t *Task, outputs []values.Output) {
	if err := s.graph.Publish(t.Stage.Name, outputs); err != nil {
		s.logger.Warn("output publication failed",
			"stage", t.Stage.Name, "task", t.ID, "error", err)
	}
}

// retireFiring returns a task's firing to the graph and announces any stage
// closures that cascade from it.
func (s *Scheduler) retireFiring(t *Task) {
	if err := s.graph.FiringRetired(t.Stage.Name); err != nil {
		s.logger.Warn("firing retirement failed",
			"stage", t.Stage.Name, "task", t.ID, "error", err)
	}
	s.announceClosures()
}

// announceClosures publishes one StageClosedEvent per stage, in definition
// order, as stages reach closure.
func (s *Scheduler) announceClosures() {
	for _, def := range s.graph.Stages() {
		if s.closedStages[def.Name] {
			continue
		}
		fired, closed := s.graph.StageClosed(def.Name)
		if !closed {
			continue
		}
		s.closedStages[def.Name] = true
		s.publish(events.TopicStage, events.StageClosedEvent{
			Stage: def.Name, Fired: fired, Timestamp: time.Now(),
		})
	}
}

// publishProgress emits run counters whenever they change.
func (s *Scheduler) publishProgress() {
	ev := events.RunProgressEvent{
		Total:     s.report.Total,
		Queued:    len(s.queue) + len(s.pendingRetry),
		Running:   s.running,
		Cached:    s.report.Cached,
		Completed: s.report.Completed,
		Failed:    s.report.Failed,
	}
	if ev == s.lastProgress {
		return
	}
	s.lastProgress = ev
	ev.Timestamp = time.Now()
	s.publish(events.TopicRun, ev)
}

func (s *Scheduler) publish(topic string, ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(topic, ev)
	}
}

// taskSpec renders a task into the executor contract: sorted stage
// environment plus input bindings as KEY=VALUE pairs, declared outputs as
// globs.
func (s *Scheduler) taskSpec(t *Task) (executor.Spec, error) {
	names := make([]string, 0, len(t.Stage.Env))
	for k := range t.Stage.Env {
		names = append(names, k)
	}
	sort.Strings(names)

	env := make([]string, 0, len(names)+len(t.Inputs))
	for _, k := range names {
		env = append(env, k+"="+t.Stage.Env[k])
	}
	for _, b := range t.Inputs {
		rendered, err := values.Render(b.Value)
		if err != nil {
			return executor.Spec{}, fmt.Errorf("input %s: %w", b.Name, err)
		}
		env = append(env, b.Name+"="+rendered)
	}

	var globs []executor.OutputGlob
	for _, out := range t.Stage.Outputs {
		if out.Glob == "" {
			continue
		}
		globs = append(globs, executor.OutputGlob{Name: out.Name, Glob: out.Glob})
	}

	return executor.Spec{
		TaskID:    t.ID,
		Stage:     t.Stage.Name,
		Command:   t.Stage.Command,
		Env:       env,
		Dir:       t.WorkDir,
		CPUs:      t.Stage.Resources.CPUs,
		MemoryMB:  int(t.Stage.Resources.MemoryMB),
		TimeLimit: t.Stage.Resources.TimeLimit,
		Outputs:   globs,
	}, nil
}

func eventKey(k hashkey.Key) string {
	if k.IsZero() {
		return ""
	}
	return k.String()
}

func shortKey(k hashkey.Key) string {
	if k.IsZero() {
		return ""
	}
	return k.Short()
}
