package authstore

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/logger"
)

// DefaultSweepSchedule runs the sweep every five minutes
const DefaultSweepSchedule = "*/5 * * * *"

// Sweeper periodically calls SweepExpired on a store
type Sweeper struct {
	store    Store
	cron     *cron.Cron
	schedule string
	mu       sync.Mutex
}

// NewSweeper creates a sweeper; an empty schedule uses DefaultSweepSchedule
func NewSweeper(store Store, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{store: store, cron: cron.New(), schedule: schedule}
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		logger.Error("Failed to schedule auth store sweep", zap.Error(err))
		return err
	}
	s.cron.Start()
	logger.Info("Auth store sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// Sweep runs one pass
func (s *Sweeper) Sweep() {
	removed, err := s.store.SweepExpired(context.Background())
	if err != nil {
		logger.Warn("Auth store sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Debug("Auth store sweep completed", zap.Int("removed", removed))
	}
}
