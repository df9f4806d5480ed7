package engine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	// DefaultJanitorSchedule sweeps the workspace root every 30 minutes
	DefaultJanitorSchedule = "@every 30m"
	// DefaultWorkspaceTTL is how old an orphaned workspace must be before removal
	DefaultWorkspaceTTL = 24 * time.Hour
)

// Janitor removes run workspaces left behind by crashed processes.
// Directories of runs that are still queued or active are never touched.
type Janitor struct {
	root     string
	ttl      time.Duration
	schedule string
	isActive func(runID string) bool
	now      func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	started bool
}

// NewJanitor validates schedule and returns a stopped janitor
func NewJanitor(root string, ttl time.Duration, schedule string, isActive func(runID string) bool) (*Janitor, error) {
	if ttl <= 0 {
		ttl = DefaultWorkspaceTTL
	}
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if isActive == nil {
		isActive = func(string) bool { return false }
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "invalid janitor schedule "+schedule, err)
	}
	return &Janitor{
		root:     root,
		ttl:      ttl,
		schedule: schedule,
		isActive: isActive,
		now:      time.Now,
		cron:     cron.New(),
	}, nil
}

// Start schedules the sweep
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		logger.Error("Failed to schedule workspace janitor", zap.Error(err))
		return
	}
	j.cron.Start()
	j.started = true
	logger.Info("Workspace janitor started",
		zap.String("root", j.root),
		zap.String("schedule", j.schedule),
		zap.Duration("ttl", j.ttl))
}

// Stop stops the scheduler and waits for a running sweep
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.started {
		return
	}
	<-j.cron.Stop().Done()
	j.started = false
}

// Sweep removes stale workspace directories and returns how many were removed
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read workspace root", zap.String("root", j.root), zap.Error(err))
		}
		return 0
	}

	cutoff := j.now().Add(-j.ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || j.isActive(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove stale workspace", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("Removed stale workspaces", zap.Int("count", removed))
	}
	return removed
}
