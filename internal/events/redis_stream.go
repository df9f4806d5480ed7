package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	// StreamKeyPrefix prefixes the per-run Redis stream key
	StreamKeyPrefix = "havoc:run_events:"

	defaultStreamMaxLen = 1000
	streamBuffer        = 256
	publishTimeout      = 2 * time.Second
)

type streamItem struct {
	runID string
	ev    Event
}

// RedisStream publishes events to one Redis stream per run.
// Publishing happens on a background goroutine; events are dropped when its buffer is full.
type RedisStream struct {
	client  *redis.Client
	maxLen  int64
	queue   chan streamItem
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewRedisStream starts the publisher; maxLen <= 0 uses a default trim length
func NewRedisStream(client *redis.Client, maxLen int64) *RedisStream {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	s := &RedisStream{
		client: client,
		maxLen: maxLen,
		queue:  make(chan streamItem, streamBuffer),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// StreamKey returns the stream key for a run
func StreamKey(runID string) string {
	return StreamKeyPrefix + runID
}

// Emit enqueues ev without blocking
func (s *RedisStream) Emit(runID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- streamItem{runID: runID, ev: ev}:
	default:
		s.dropped++
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (s *RedisStream) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *RedisStream) loop() {
	defer close(s.done)
	for item := range s.queue {
		s.publish(item)
	}
}

func (s *RedisStream) publish(item streamItem) {
	values := map[string]interface{}{
		"type":      item.ev.Type,
		"message":   item.ev.Message,
		"timestamp": item.ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if len(item.ev.Data) > 0 {
		if data, err := json.Marshal(item.ev.Data); err == nil {
			values["data"] = string(data)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(item.runID),
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		logger.Debug("Failed to publish run event",
			zap.String("run_id", item.runID),
			zap.String("type", item.ev.Type),
			zap.Error(err))
	}
}

// Close stops accepting events and waits for queued ones to be published
func (s *RedisStream) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
	})
}
