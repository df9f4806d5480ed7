// Package authstore is a small expiring key-value store for auth state:
// cached installation tokens and webhook delivery ids.
package authstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for missing or expired keys
var ErrNotFound = errors.New("authstore: key not found")

// Store is an expiring key-value store. A zero ttl means the entry never expires.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent stores value only when key is missing or expired and reports whether it did
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error

	// SweepExpired drops expired entries and returns how many were removed
	SweepExpired(ctx context.Context) (int, error)

	Close() error
}
