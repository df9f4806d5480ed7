package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrClientNotAvailable indicates the provider cannot be used (missing API key etc.)
	ErrClientNotAvailable = errors.New("client not available")

	// ErrInvalidResponse indicates the response could not be parsed
	ErrInvalidResponse = errors.New("invalid response format")

	// ErrEmptyResponse indicates the provider returned no text
	ErrEmptyResponse = errors.New("empty response")
)

// ClientError represents an error from an LLM client
type ClientError struct {
	// Client is the name of the client that produced the error
	Client string

	// Operation is the operation that failed (e.g., "execute")
	Operation string

	Message string

	Err error

	// Retryable indicates whether the operation can be retried
	Retryable bool
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s.%s] %s: %v", e.Client, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s.%s] %s", e.Client, e.Operation, e.Message)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new ClientError
func NewClientError(client, operation, message string, err error) *ClientError {
	return &ClientError{
		Client:    client,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// NewRetryableError creates a new retryable ClientError
func NewRetryableError(client, operation, message string, err error) *ClientError {
	return &ClientError{
		Client:    client,
		Operation: operation,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return false
}
