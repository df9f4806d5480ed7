package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	defaultLogBufferSize    = 1024
	defaultLogFlushInterval = 2 * time.Second
	defaultLogBatchSize     = 100
)

// RunLogWriter batches run log entries captured by the logger hook and
// persists them from a background goroutine. It implements logger.RunLogWriter.
// Entries are dropped when the buffer is full so logging never blocks a run.
type RunLogWriter struct {
	store   RunLogStore
	entries chan model.RunLog
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	dropped int64
}

// NewRunLogWriter creates and starts a RunLogWriter
func NewRunLogWriter(store RunLogStore) *RunLogWriter {
	w := &RunLogWriter{
		store:   store,
		entries: make(chan model.RunLog, defaultLogBufferSize),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// WriteRunLog enqueues an entry without blocking
func (w *RunLogWriter) WriteRunLog(entry logger.RunLogEntry) {
	log := model.RunLog{
		CreatedAt: entry.Time,
		RunID:     entry.RunID,
		Level:     model.LogLevel(entry.Level),
		Message:   entry.Message,
		Fields:    model.JSONMap(entry.Fields),
	}
	select {
	case w.entries <- log:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Dropped returns how many entries were discarded because the buffer was full
func (w *RunLogWriter) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close flushes pending entries and stops the writer
func (w *RunLogWriter) Close() {
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *RunLogWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(defaultLogFlushInterval)
	defer ticker.Stop()

	batch := make([]model.RunLog, 0, defaultLogBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.store.BatchCreate(batch); err != nil {
			// no run_id field here, otherwise the hook feeds this back into the writer
			logger.Warn("Failed to persist run logs",
				zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]model.RunLog, 0, defaultLogBatchSize)
	}

	for {
		select {
		case entry := <-w.entries:
			batch = append(batch, entry)
			if len(batch) >= defaultLogBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case entry := <-w.entries:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
