// Package errors defines havoc's coded errors. Every pipeline failure and
// API error carries an ErrorCode that maps to an HTTP status.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

// Error codes for different error categories
const (
	// General errors (1xxx)
	ErrCodeInternal     ErrorCode = "E1000"
	ErrCodeValidation   ErrorCode = "E1001"
	ErrCodeNotFound     ErrorCode = "E1002"
	ErrCodeUnauthorized ErrorCode = "E1005"

	// Source control errors (20xx)
	ErrCodeGitClone   ErrorCode = "E2001"
	ErrCodeGitAuth    ErrorCode = "E2002"
	ErrCodeGitWebhook ErrorCode = "E2004"
	ErrCodeGitPush    ErrorCode = "E2005"

	// Sandbox errors (21xx)
	ErrCodeProvisioning ErrorCode = "E2101"
	ErrCodeSandboxExec  ErrorCode = "E2102"
	ErrCodeTimeout      ErrorCode = "E2103"

	// Generation errors (3xxx)
	ErrCodeGeneration ErrorCode = "E3101"

	// Pipeline errors (4xxx)
	// TaskExecution and PolicyViolation tag task results and rejection
	// events. They are never returned as errors.
	ErrCodeRunNotFound     ErrorCode = "E4001"
	ErrCodeRunTerminal     ErrorCode = "E4002"
	ErrCodeInvalidPlan     ErrorCode = "E4003"
	ErrCodeTaskExecution   ErrorCode = "E4101"
	ErrCodeSync            ErrorCode = "E4201"
	ErrCodeNoChanges       ErrorCode = "E4202"
	ErrCodePolicyViolation ErrorCode = "E4301"
	ErrCodeQueueFull       ErrorCode = "E4401"

	// Database errors (5xxx)
	ErrCodeDBConnection ErrorCode = "E5001"
	ErrCodeDBQuery      ErrorCode = "E5002"
	ErrCodeDBMigration  ErrorCode = "E5003"

	// Configuration errors (6xxx)
	ErrCodeConfigNotFound ErrorCode = "E6001"
	ErrCodeConfigInvalid  ErrorCode = "E6002"
	ErrCodeConfigParse    ErrorCode = "E6003"
)

// Exit codes for application startup failures
const (
	// ExitCodeConfigValidation indicates configuration validation failure
	ExitCodeConfigValidation = 2
)

// AppError is an error with a code. Err is the optional cause.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for the error
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeRunNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeInvalidPlan, ErrCodeGitWebhook:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeGitAuth:
		return http.StatusUnauthorized
	case ErrCodeRunTerminal:
		return http.StatusConflict
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeProvisioning, ErrCodeQueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Pipeline taxonomy constructors

// ErrProvisioning reports that the sandbox could not be created
func ErrProvisioning(message string, err error) *AppError {
	return Wrap(ErrCodeProvisioning, message, err)
}

// ErrTimeout reports a sandboxed command that exceeded its deadline
func ErrTimeout(message string, err error) *AppError {
	return Wrap(ErrCodeTimeout, message, err)
}

// ErrClone reports an inaccessible repository
func ErrClone(message string, err error) *AppError {
	return Wrap(ErrCodeGitClone, message, err)
}

// ErrAuth reports invalid or insufficient credentials
func ErrAuth(message string, err error) *AppError {
	return Wrap(ErrCodeGitAuth, message, err)
}

// ErrGeneration reports an LLM stage that produced no usable output
func ErrGeneration(message string, err error) *AppError {
	return Wrap(ErrCodeGeneration, message, err)
}

// ErrSync reports task output that never reached version control
func ErrSync(message string) *AppError {
	return New(ErrCodeSync, message)
}

// AsAppError attempts to convert an error to AppError, searching the wrap chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether any AppError in err's chain carries the given code
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}
