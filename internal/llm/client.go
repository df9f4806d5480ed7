// Package llm provides a unified interface to the language model providers
// and the structured asking used by the pipeline stages.
package llm

import (
	"context"
)

// ModelTier selects between a cheap model and a capable one
type ModelTier string

const (
	// TierFast is used for analysis and review
	TierFast ModelTier = "fast"
	// TierStrong is used for planning and code generation
	TierStrong ModelTier = "strong"
)

// Client defines the interface for LLM provider clients.
// Different implementations (Gemini, mock) implement this interface.
type Client interface {
	// Name returns the client identifier (e.g., "gemini", "mock")
	Name() string

	// Available checks if the client can serve requests (API key present etc.)
	Available() bool

	// GetConfig returns the client configuration
	GetConfig() *ClientConfig

	// Execute performs a synchronous generation and returns the complete response
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the client
	Close() error
}
