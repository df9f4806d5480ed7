// Package store provides the data access layer.
// It hides gorm behind small interfaces so the pipeline and the API
// depend only on the operations they use.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces.
type Store interface {
	Run() RunStore
	RunLog() RunLogStore

	// DB returns the underlying database connection for advanced operations.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

// gormStore implements Store using GORM.
type gormStore struct {
	db          *gorm.DB
	runStore    RunStore
	runLogStore RunLogStore
}

// NewStore creates a new Store instance with GORM backend.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:          db,
		runStore:    newRunStore(db),
		runLogStore: newRunLogStore(db),
	}
}

func (s *gormStore) Run() RunStore {
	return s.runStore
}

func (s *gormStore) RunLog() RunLogStore {
	return s.runLogStore
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
