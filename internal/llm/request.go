package llm

import (
	"time"
)

// Request represents a request to the LLM client
type Request struct {
	// Prompt is the full prompt text
	Prompt string

	// Tier selects the model when Model is empty
	Tier ModelTier

	// Model overrides the tier model
	Model string

	// JSON asks the provider for a JSON response where supported
	JSON bool

	// Timeout overrides the client default
	Timeout time.Duration

	// Metadata is carried into logs (stage, run_id)
	Metadata map[string]string
}

// Response represents the response from the LLM client
type Response struct {
	// Content is the raw response text
	Content string

	// Model is the model that produced the response
	Model string

	// Usage contains token usage statistics (optional)
	Usage *Usage

	Duration time.Duration
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewRequest creates a new Request for the fast tier
func NewRequest(prompt string) *Request {
	return &Request{Prompt: prompt, Tier: TierFast}
}

// WithTier sets the model tier
func (r *Request) WithTier(tier ModelTier) *Request {
	r.Tier = tier
	return r
}

// WithJSON requests JSON output
func (r *Request) WithJSON() *Request {
	r.JSON = true
	return r
}

// WithMetadata adds a metadata entry
func (r *Request) WithMetadata(key, value string) *Request {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// GetMetadata returns a metadata value, or empty string if not found
func (r *Request) GetMetadata(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}
