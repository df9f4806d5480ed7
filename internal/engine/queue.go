// Package engine schedules runs: a per-repository FIFO queue, a dispatcher
// that caps cross-run concurrency, and the Engine facade that submits runs to
// the pipeline.
package engine

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// RepoRunQueue holds pending runs per repository.
// Each repository has its own FIFO queue and at most one active run, so runs
// against the same repository never overlap while different repositories
// proceed in parallel.
type RepoRunQueue struct {
	mu sync.RWMutex

	// queues holds per-repo queues, key is owner/repo
	queues map[string]*repoQueue

	// runsByID holds pending runs to reject duplicate submissions
	runsByID map[string]*queuedRun

	// capacity bounds the number of pending runs; zero means unbounded
	capacity int
	pending  int
	seq      uint64

	runReady chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

type queuedRun struct {
	run *model.Run
	seq uint64
}

type repoQueue struct {
	runs *list.List

	// current is the id of the active run ("" if none)
	current string
}

// NewRepoRunQueue creates a queue holding at most capacity pending runs
func NewRepoRunQueue(ctx context.Context, capacity int) *RepoRunQueue {
	queueCtx, cancel := context.WithCancel(ctx)

	q := &RepoRunQueue{
		queues:   make(map[string]*repoQueue),
		runsByID: make(map[string]*queuedRun),
		capacity: capacity,
		runReady: make(chan struct{}, 1),
		ctx:      queueCtx,
		cancel:   cancel,
	}

	logger.Info("Run queue initialized", zap.Int("capacity", capacity))
	return q
}

// Enqueue appends run to the queue of its repository.
// It returns false without error when the run is already queued or active,
// and a QueueFull error when the queue is at capacity.
func (q *RepoRunQueue) Enqueue(run *model.Run) (bool, error) {
	if run == nil || run.ID == "" {
		return false, errors.ErrValidation("cannot enqueue a run without id")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasLocked(run.ID) {
		logger.Debug("Run already queued, skipping", zap.String("run_id", run.ID))
		return false, nil
	}
	if q.capacity > 0 && q.pending >= q.capacity {
		return false, errors.New(errors.ErrCodeQueueFull,
			fmt.Sprintf("run queue is full (%d pending)", q.pending))
	}

	repo := run.FullRepo()
	rq, ok := q.queues[repo]
	if !ok {
		rq = &repoQueue{runs: list.New()}
		q.queues[repo] = rq
	}

	q.seq++
	qr := &queuedRun{run: run, seq: q.seq}
	rq.runs.PushBack(qr)
	q.runsByID[run.ID] = qr
	q.pending++

	q.signalRunReady()
	return true, nil
}

// Dequeue returns the oldest pending run whose repository has no active run
// and marks that repository active. It returns nil when nothing can start.
func (q *RepoRunQueue) Dequeue() *model.Run {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		best     *queuedRun
		bestRepo *repoQueue
	)
	for _, rq := range q.queues {
		if rq.current != "" || rq.runs.Len() == 0 {
			continue
		}
		front := rq.runs.Front().Value.(*queuedRun)
		if best == nil || front.seq < best.seq {
			best, bestRepo = front, rq
		}
	}
	if best == nil {
		return nil
	}

	bestRepo.runs.Remove(bestRepo.runs.Front())
	bestRepo.current = best.run.ID
	delete(q.runsByID, best.run.ID)
	q.pending--
	return best.run
}

// MarkComplete releases the repository of a finished run so its next run can start
func (q *RepoRunQueue) MarkComplete(repo, runID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rq, ok := q.queues[repo]
	if !ok || rq.current != runID {
		logger.Warn("MarkComplete called for a run that is not active",
			zap.String("repo", repo),
			zap.String("run_id", runID))
		return
	}
	rq.current = ""

	logger.Debug("Run released",
		zap.String("run_id", runID),
		zap.String("repo", repo),
		zap.Int("pending_count", rq.runs.Len()))

	if rq.runs.Len() == 0 {
		delete(q.queues, repo)
	}
	q.signalRunReady()
}

// Remove drops a pending run. Active runs cannot be removed.
func (q *RepoRunQueue) Remove(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	qr, ok := q.runsByID[runID]
	if !ok {
		return false
	}
	repo := qr.run.FullRepo()
	if rq, ok := q.queues[repo]; ok {
		for elem := rq.runs.Front(); elem != nil; elem = elem.Next() {
			if elem.Value.(*queuedRun) == qr {
				rq.runs.Remove(elem)
				break
			}
		}
		if rq.runs.Len() == 0 && rq.current == "" {
			delete(q.queues, repo)
		}
	}
	delete(q.runsByID, runID)
	q.pending--
	return true
}

// RunReady signals that a run may be ready to start
func (q *RepoRunQueue) RunReady() <-chan struct{} {
	return q.runReady
}

func (q *RepoRunQueue) signalRunReady() {
	select {
	case q.runReady <- struct{}{}:
	default:
	}
}

// Has reports whether runID is pending or active
func (q *RepoRunQueue) Has(runID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.hasLocked(runID)
}

func (q *RepoRunQueue) hasLocked(runID string) bool {
	if _, ok := q.runsByID[runID]; ok {
		return true
	}
	for _, rq := range q.queues {
		if rq.current == runID {
			return true
		}
	}
	return false
}

// GetStats returns queue statistics
func (q *RepoRunQueue) GetStats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := QueueStats{
		TotalPending: q.pending,
		RepoCount:    len(q.queues),
		Capacity:     q.capacity,
		RepoStats:    make(map[string]RepoQueueStats, len(q.queues)),
	}
	for repo, rq := range q.queues {
		if rq.current != "" {
			stats.TotalRunning++
		}
		stats.RepoStats[repo] = RepoQueueStats{
			PendingCount: rq.runs.Len(),
			Running:      rq.current != "",
			CurrentRun:   rq.current,
		}
	}
	return stats
}

// QueueStats holds queue statistics
type QueueStats struct {
	TotalPending int                       `json:"total_pending"`
	TotalRunning int                       `json:"total_running"` // repositories with an active run
	RepoCount    int                       `json:"repo_count"`
	Capacity     int                       `json:"capacity"`
	RepoStats    map[string]RepoQueueStats `json:"repos"`
}

// RepoQueueStats holds per-repo queue statistics
type RepoQueueStats struct {
	PendingCount int    `json:"pending_count"`
	Running      bool   `json:"running"`
	CurrentRun   string `json:"current_run,omitempty"`
}

// IsEmpty reports whether nothing is pending or active
func (q *RepoRunQueue) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.queues) == 0
}

// GetPendingCount returns the number of pending runs
func (q *RepoRunQueue) GetPendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.pending
}

// Stop cancels the queue context
func (q *RepoRunQueue) Stop() {
	q.cancel()
	logger.Info("Run queue stopped")
}

// Context returns the queue's context
func (q *RepoRunQueue) Context() context.Context {
	return q.ctx
}
