// Package idgen generates run IDs, request IDs and secrets.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rs/xid"
)

// NewID generates a new globally unique, sortable identifier.
// Returns a 20-character string using xid format.
func NewID() string {
	return xid.New().String()
}

// NewRunID generates a unique ID for pipeline runs.
func NewRunID() string {
	return NewID()
}

// NewRequestID generates a unique ID for request tracking.
func NewRequestID() string {
	return NewID()
}

// Short returns the first n characters of id, or id itself when shorter.
func Short(id string, n int) string {
	if n < 0 || len(id) <= n {
		return id
	}
	return id[:n]
}

// NewSecureSecret returns length random URL-safe base64 characters
func NewSecureSecret(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}
	raw := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
