package store

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	// DefaultRunLogRetentionDays is the default number of days to retain run logs
	DefaultRunLogRetentionDays = 30
	// RunLogCleanupSchedule runs the cleanup daily at 3 AM
	RunLogCleanupSchedule = "0 3 * * *"
)

// RunLogCleanupService periodically deletes old run logs
type RunLogCleanupService struct {
	store         RunLogStore
	cron          *cron.Cron
	retentionDays int
	mu            sync.Mutex
}

// NewRunLogCleanupService creates a new cleanup service
func NewRunLogCleanupService(store RunLogStore, retentionDays int) *RunLogCleanupService {
	if retentionDays <= 0 {
		retentionDays = DefaultRunLogRetentionDays
	}
	return &RunLogCleanupService{
		store:         store,
		cron:          cron.New(),
		retentionDays: retentionDays,
	}
}

// Start schedules the cleanup job and runs one pass immediately in the background
func (s *RunLogCleanupService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddFunc(RunLogCleanupSchedule, s.Cleanup); err != nil {
		logger.Error("Failed to schedule run log cleanup", zap.Error(err))
		return err
	}
	s.cron.Start()

	logger.Info("Run log cleanup service started",
		zap.String("schedule", RunLogCleanupSchedule),
		zap.Int("retention_days", s.retentionDays),
	)

	go s.Cleanup()
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *RunLogCleanupService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Run log cleanup service stopped")
}

// Cleanup deletes logs older than the retention period
func (s *RunLogCleanupService) Cleanup() {
	start := time.Now()
	deleted, err := s.store.DeleteOlderThan(s.retentionDays)
	if err != nil {
		logger.Error("Failed to cleanup old run logs",
			zap.Int("retention_days", s.retentionDays),
			zap.Error(err),
		)
		return
	}

	logger.Info("Run log cleanup completed",
		zap.Int64("deleted_count", deleted),
		zap.Duration("duration", time.Since(start)),
	)
}
