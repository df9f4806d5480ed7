// Package database provides database initialization and connection management.
// It uses GORM with an embedded SQLite database.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// DefaultDBPath is used when the configuration leaves database.path empty
const DefaultDBPath = "./data/havoc.db"

var (
	db   *gorm.DB
	once sync.Once
)

// InitWithPath initializes the database connection and runs migrations.
// Only the first call takes effect.
func InitWithPath(dbPath string) error {
	var initErr error
	once.Do(func() {
		db, initErr = Open(dbPath)
	})
	return initErr
}

// Open creates a new, migrated connection without touching the package singleton
func Open(dbPath string) (*gorm.DB, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	logger.Info("Initializing database", zap.String("path", dbPath))

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("Failed to create database directory", zap.Error(err), zap.String("dir", dir))
			return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to create database directory", err)
		}
	}

	driver := &SQLiteDriver{}

	dialector, err := driver.Open(dbPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to open database", err)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	if err := driver.Configure(conn); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to configure database", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}

	logger.Info("Database initialized successfully", zap.String("driver", driver.Name()))
	return conn, nil
}

// Migrate runs auto-migration for all models
func Migrate(conn *gorm.DB) error {
	models := model.AllModels()
	if err := conn.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run database migrations", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run database migrations", err)
	}
	logger.Debug("Database migrations completed", zap.Int("models", len(models)))
	return nil
}

// Get returns the database instance.
// Panics if the database hasn't been initialized.
func Get() *gorm.DB {
	if db == nil {
		panic("database not initialized, call InitWithPath first")
	}
	return db
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	logger.Info("Closing database connection")
	return sqlDB.Close()
}

// ResetForTesting closes and forgets the singleton so tests can re-initialize it
func ResetForTesting() {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		db = nil
	}
	once = sync.Once{}
}

// HealthCheck pings the database
func HealthCheck() error {
	if db == nil {
		return errors.New(errors.ErrCodeDBConnection, "database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to get database connection", err)
	}
	return sqlDB.Ping()
}
