package llm

import (
	"time"
)

// Default configuration values
const (
	DefaultTimeout     = 2 * time.Minute
	DefaultFastModel   = "gemini-1.5-flash"
	DefaultStrongModel = "gemini-1.5-pro"
)

// ClientConfig contains configuration for an LLM client
type ClientConfig struct {
	// Name is the client identifier (e.g., "gemini", "mock")
	Name string

	// APIKey is the provider API key
	APIKey string

	// FastModel and StrongModel map the tiers to provider model names
	FastModel   string
	StrongModel string

	// Temperature is applied to every request; zero means the provider default
	Temperature float32

	// DefaultTimeout bounds a single request
	DefaultTimeout time.Duration
}

// NewClientConfig creates a new ClientConfig with default values
func NewClientConfig(name string) *ClientConfig {
	return &ClientConfig{
		Name:           name,
		FastModel:      DefaultFastModel,
		StrongModel:    DefaultStrongModel,
		Temperature:    0.1,
		DefaultTimeout: DefaultTimeout,
	}
}

// WithAPIKey sets the API key
func (c *ClientConfig) WithAPIKey(key string) *ClientConfig {
	c.APIKey = key
	return c
}

// WithModels sets the tier models; empty values keep the current ones
func (c *ClientConfig) WithModels(fast, strong string) *ClientConfig {
	if fast != "" {
		c.FastModel = fast
	}
	if strong != "" {
		c.StrongModel = strong
	}
	return c
}

// WithDefaultTimeout sets the default timeout
func (c *ClientConfig) WithDefaultTimeout(timeout time.Duration) *ClientConfig {
	if timeout > 0 {
		c.DefaultTimeout = timeout
	}
	return c
}

// GetTimeout returns the timeout to use, considering request options
func (c *ClientConfig) GetTimeout(req *Request) time.Duration {
	if req != nil && req.Timeout > 0 {
		return req.Timeout
	}
	return c.DefaultTimeout
}

// GetModel returns the model for the request: an explicit model wins over the tier
func (c *ClientConfig) GetModel(req *Request) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if req != nil && req.Tier == TierStrong {
		return c.StrongModel
	}
	return c.FastModel
}
