package database

import "gorm.io/gorm"

// Driver abstracts the SQL backend behind gorm
type Driver interface {
	// Name returns the driver name (e.g. "sqlite")
	Name() string

	// Open returns a gorm dialector for the data source
	Open(dsn string) (gorm.Dialector, error)

	// Configure applies connection pool and pragma settings after the connection is opened
	Configure(db *gorm.DB) error
}
