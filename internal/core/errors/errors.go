package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Authentication
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUnauthorized = errors.New("unauthorized")

	// Events
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrIssueIDRequired  = errors.New("issue ID is required")
	ErrUserIDRequired   = errors.New("user ID is required")

	// Connections
	ErrConnectionClosed = errors.New("connection closed")

	// Scheduler
	ErrJobNameRequired  = errors.New("job name is required")
	ErrJobFuncRequired  = errors.New("job function is required")
	ErrInvalidTrigger   = errors.New("invalid job trigger")
	ErrJobExists        = errors.New("job already registered")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobRunning       = errors.New("job is already running")
	ErrSchedulerRunning = errors.New("scheduler already running")
	ErrSchedulerStopped = errors.New("scheduler is not running")
	ErrShutdownTimeout  = errors.New("jobs did not finish within the shutdown grace period")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewValidationError(err error, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		StatusCode: 422,
		Details:    details,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ShutdownError lists the jobs still running when the grace period ended.
type ShutdownError struct {
	Jobs []string
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("%s: %v", ErrShutdownTimeout.Error(), e.Jobs)
}

func (e *ShutdownError) Unwrap() error {
	return ErrShutdownTimeout
}
