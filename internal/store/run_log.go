package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/AlecFritsch/inito/internal/model"
)

// RunLogStore defines operations for captured run logs
type RunLogStore interface {
	// BatchCreate inserts log entries in a single statement
	BatchCreate(logs []model.RunLog) error

	// GetByRunID returns logs for a run in chronological order, optionally filtered by level
	GetByRunID(runID string, level model.LogLevel, limit int) ([]model.RunLog, error)

	// DeleteOlderThan deletes logs created more than days ago
	DeleteOlderThan(days int) (int64, error)

	CountByRunID(runID string) (int64, error)
}

type runLogStore struct {
	db *gorm.DB
}

func newRunLogStore(db *gorm.DB) RunLogStore {
	return &runLogStore{db: db}
}

func (s *runLogStore) BatchCreate(logs []model.RunLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.CreateInBatches(&logs, 200).Error
}

func (s *runLogStore) GetByRunID(runID string, level model.LogLevel, limit int) ([]model.RunLog, error) {
	var logs []model.RunLog
	query := s.db.Where("run_id = ?", runID)
	if level != "" {
		query = query.Where("level IN ?", levelsAtAndAbove(level))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at ASC, id ASC").Find(&logs).Error
	return logs, err
}

func (s *runLogStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := s.db.Where("created_at < ?", cutoff).Delete(&model.RunLog{})
	return result.RowsAffected, result.Error
}

func (s *runLogStore) CountByRunID(runID string) (int64, error) {
	var count int64
	err := s.db.Model(&model.RunLog{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}

var logLevelOrder = []model.LogLevel{
	model.LogLevelDebug,
	model.LogLevelInfo,
	model.LogLevelWarn,
	model.LogLevelError,
	model.LogLevelFatal,
}

// levelsAtAndAbove returns level and every more severe level
func levelsAtAndAbove(level model.LogLevel) []model.LogLevel {
	for i, l := range logLevelOrder {
		if l == level {
			return logLevelOrder[i:]
		}
	}
	return logLevelOrder
}
