package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// ProcessFunc executes one run to completion
type ProcessFunc func(ctx context.Context, run *model.Run)

// Dispatcher moves runs from the queue to a fixed pool of workers.
// The pool size is the cross-run concurrency cap.
type Dispatcher struct {
	queue      *RepoRunQueue
	runs       chan *model.Run
	maxWorkers int
	process    ProcessFunc

	ctx      context.Context
	cancel   context.CancelFunc
	workerWg sync.WaitGroup
	loopDone chan struct{}

	mu      sync.Mutex
	running bool
}

// DispatcherConfig holds configuration for the Dispatcher
type DispatcherConfig struct {
	MaxWorkers int
}

// DefaultDispatcherConfig returns default dispatcher configuration
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{MaxWorkers: 4}
}

// NewDispatcher creates a dispatcher. process receives a context that is
// cancelled when the dispatcher stops.
func NewDispatcher(ctx context.Context, queue *RepoRunQueue, config *DispatcherConfig, process ProcessFunc) *Dispatcher {
	if config == nil || config.MaxWorkers <= 0 {
		config = DefaultDispatcherConfig()
	}

	dctx, cancel := context.WithCancel(ctx)
	// runs is unbuffered: dispatch blocks until a worker is free
	return &Dispatcher{
		queue:      queue,
		runs:       make(chan *model.Run),
		maxWorkers: config.MaxWorkers,
		process:    process,
		ctx:        dctx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
	}
}

// Start launches the workers and the dispatch loop
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	logger.Info("Starting dispatcher", zap.Int("workers", d.maxWorkers))

	for i := 0; i < d.maxWorkers; i++ {
		d.workerWg.Add(1)
		go d.worker(i)
	}
	go d.dispatchLoop()
}

func (d *Dispatcher) dispatchLoop() {
	defer close(d.loopDone)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.queue.RunReady():
			d.tryDispatch()
		}
	}
}

// tryDispatch hands out runs until the queue has nothing startable
func (d *Dispatcher) tryDispatch() {
	for {
		run := d.queue.Dequeue()
		if run == nil {
			return
		}
		select {
		case d.runs <- run:
			logger.Debug("Run dispatched",
				zap.String("run_id", run.ID),
				zap.String("repo", run.FullRepo()))
		case <-d.ctx.Done():
			d.queue.MarkComplete(run.FullRepo(), run.ID)
			return
		}
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.workerWg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case run := <-d.runs:
			start := time.Now()
			logger.Debug("Worker picked up run", zap.Int("worker_id", id), zap.String("run_id", run.ID))

			d.safeProcess(run)
			d.queue.MarkComplete(run.FullRepo(), run.ID)

			logger.Debug("Worker finished run",
				zap.Int("worker_id", id),
				zap.String("run_id", run.ID),
				zap.Duration("duration", time.Since(start)))
		}
	}
}

func (d *Dispatcher) safeProcess(run *model.Run) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Run processing panicked",
				zap.String("run_id", run.ID),
				zap.Any("panic", r))
		}
	}()
	d.process(d.ctx, run)
}

// Stop cancels in-flight runs and waits for the workers to return
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	logger.Info("Stopping dispatcher")
	d.cancel()
	<-d.loopDone
	d.workerWg.Wait()
	logger.Info("Dispatcher stopped")
}

// IsRunning reports whether Start was called and Stop was not
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// GetWorkerCount returns the number of workers
func (d *Dispatcher) GetWorkerCount() int {
	return d.maxWorkers
}
