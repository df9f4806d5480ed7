package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/engine/pipeline"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/internal/store"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/idgen"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// ReasonInterrupted is recorded on runs that were mid-flight when the process stopped
const ReasonInterrupted = "interrupted by restart"

// Runner executes one run to a terminal state
type Runner interface {
	Run(ctx context.Context, run *model.Run) pipeline.Result
}

// Engine accepts runs, persists them and feeds them to the pipeline through
// the per-repository queue.
type Engine struct {
	cfg    config.EngineConfig
	runs   store.RunStore
	runner Runner

	queue      *RepoRunQueue
	dispatcher *Dispatcher
	janitor    *Janitor

	mu         sync.RWMutex
	onComplete func(run *model.Run, result pipeline.Result)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine. workspaceRoot is swept by the janitor.
func NewEngine(cfg config.EngineConfig, runs store.RunStore, runner Runner, workspaceRoot string) (*Engine, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultDispatcherConfig().MaxWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		runs:   runs,
		runner: runner,
		queue:  NewRepoRunQueue(ctx, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	e.dispatcher = NewDispatcher(ctx, e.queue, &DispatcherConfig{MaxWorkers: cfg.MaxConcurrent}, e.process)

	janitor, err := NewJanitor(workspaceRoot, time.Duration(cfg.WorkspaceTTLHours)*time.Hour, cfg.JanitorSchedule, e.queue.Has)
	if err != nil {
		cancel()
		return nil, err
	}
	e.janitor = janitor
	return e, nil
}

// SetOnComplete registers a callback invoked after every queued run finishes
func (e *Engine) SetOnComplete(fn func(run *model.Run, result pipeline.Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = fn
}

// Start recovers runs left over by a previous process, then starts the
// workers and the janitor.
func (e *Engine) Start() error {
	logger.Info("Starting engine",
		zap.Int("max_concurrent", e.cfg.MaxConcurrent),
		zap.Int("queue_size", e.cfg.QueueSize))

	e.dispatcher.Start()
	if err := e.recover(); err != nil {
		return err
	}
	e.janitor.Start()
	return nil
}

// recover fails runs that had started and requeues runs that never did
func (e *Engine) recover() error {
	n, err := e.runs.FailInterrupted(ReasonInterrupted)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to fail interrupted runs", err)
	}
	if n > 0 {
		logger.Warn("Marked interrupted runs as failed", zap.Int64("count", n))
	}

	pending, err := e.runs.ListActive()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to list pending runs", err)
	}
	requeued := 0
	for i := range pending {
		run := &pending[i]
		if err := e.enqueue(run); err != nil {
			logger.Warn("Failed to requeue pending run", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		logger.Info("Requeued pending runs", zap.Int("count", requeued))
	}
	return nil
}

// Stop stops the janitor, cancels in-flight runs and waits for the workers
func (e *Engine) Stop() {
	logger.Info("Stopping engine")
	e.janitor.Stop()
	e.dispatcher.Stop()
	e.queue.Stop()
	e.cancel()
	logger.Info("Engine stopped")
}

// Submit persists run as pending and queues it. The run id is assigned when empty.
func (e *Engine) Submit(run *model.Run) error {
	if err := prepare(run); err != nil {
		return err
	}
	if err := e.runs.Create(run); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to create run", err)
	}
	if err := e.enqueue(run); err != nil {
		return err
	}

	logger.Info("Run submitted",
		zap.String("run_id", run.ID),
		zap.String("repo", run.FullRepo()),
		zap.Int("issue", run.IssueNumber),
		zap.String("trigger", string(run.TriggerSource)),
		zap.Int("queue_pending", e.queue.GetPendingCount()))
	return nil
}

// enqueue queues a persisted run. A run that cannot be queued is failed so
// it does not stay pending forever.
func (e *Engine) enqueue(run *model.Run) error {
	if _, err := e.queue.Enqueue(run); err != nil {
		if uerr := e.runs.UpdateStatus(run.ID, model.RunStatusFailed, err.Error()); uerr != nil {
			logger.Warn("Failed to record rejected run", zap.String("run_id", run.ID), zap.Error(uerr))
		}
		return err
	}
	return nil
}

// Execute persists run and executes it on the calling goroutine, bypassing
// the queue. Used by the one-shot CLI.
func (e *Engine) Execute(ctx context.Context, run *model.Run) (pipeline.Result, error) {
	if err := prepare(run); err != nil {
		return pipeline.Result{}, err
	}
	if err := e.runs.Create(run); err != nil {
		return pipeline.Result{}, errors.Wrap(errors.ErrCodeDBQuery, "failed to create run", err)
	}
	return e.run(ctx, run), nil
}

func prepare(run *model.Run) error {
	if run == nil {
		return errors.ErrValidation("run is required")
	}
	if run.RepoOwner == "" || run.RepoName == "" {
		return errors.ErrValidation("repository owner and name are required")
	}
	if run.IssueNumber <= 0 {
		return errors.ErrValidation(fmt.Sprintf("invalid issue number %d", run.IssueNumber))
	}
	if run.ID == "" {
		run.ID = idgen.NewRunID()
	}
	run.Status = model.RunStatusPending
	return nil
}

// run hands run to the runner. A panic escaping the runner fails the run
// instead of the process.
func (e *Engine) run(ctx context.Context, run *model.Run) (result pipeline.Result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("run panicked: %v", r)
			logger.Error("Runner panicked",
				zap.String("run_id", run.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			if err := e.runs.UpdateStatus(run.ID, model.RunStatusFailed, msg); err != nil {
				logger.Warn("Failed to record panicked run", zap.String("run_id", run.ID), zap.Error(err))
			}
			result = pipeline.Result{RunID: run.ID, Error: msg}
		}
	}()
	return e.runner.Run(ctx, run)
}

// process is the dispatcher callback
func (e *Engine) process(ctx context.Context, run *model.Run) {
	result := e.run(ctx, run)

	e.mu.RLock()
	onComplete := e.onComplete
	e.mu.RUnlock()
	if onComplete != nil {
		onComplete(run, result)
	}
}

// GetQueueStats returns queue statistics
func (e *Engine) GetQueueStats() QueueStats {
	return e.queue.GetStats()
}

// IsQueued reports whether runID is pending or running in this process
func (e *Engine) IsQueued(runID string) bool {
	return e.queue.Has(runID)
}

// Context is cancelled when the engine stops
func (e *Engine) Context() context.Context {
	return e.ctx
}
