package database

import (
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AlecFritsch/inito/pkg/logger"
)

// SQLiteDriver implements Driver for the pure-Go SQLite backend
type SQLiteDriver struct{}

// Name returns the driver name
func (d *SQLiteDriver) Name() string {
	return "sqlite"
}

// Open opens a SQLite database. ":memory:" is accepted for tests.
func (d *SQLiteDriver) Open(dsn string) (gorm.Dialector, error) {
	return sqlite.Open(dsn), nil
}

// Configure limits the pool to one connection and enables WAL.
// Concurrent runs all write status updates through this single connection.
func (d *SQLiteDriver) Configure(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		logger.Warn("Failed to enable WAL mode", zap.Error(err))
	}
	if err := db.Exec("PRAGMA synchronous = NORMAL").Error; err != nil {
		logger.Warn("Failed to set synchronous mode", zap.Error(err))
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		logger.Warn("Failed to set busy timeout", zap.Error(err))
	}

	logger.Debug("SQLite configured",
		zap.String("journal_mode", "WAL"),
		zap.String("synchronous", "NORMAL"),
	)
	return nil
}
