// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrQueueEmpty is returned when a job is requested from an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrWaitTimeout is returned when the idle wait elapses without a new job.
	ErrWaitTimeout = errors.New("timed out waiting for next job")

	// ErrServiceClosed is returned when an operation is attempted after shutdown.
	ErrServiceClosed = errors.New("service closed")

	// ErrJobCancelled is returned when a job stops because of a cancel request.
	ErrJobCancelled = errors.New("job cancelled")

	// ErrStreamNotFound is returned when the resolver finds no downloadable stream.
	ErrStreamNotFound = errors.New("no media stream found")

	// ErrResolveTimeout is returned when the resolver does not answer in time.
	ErrResolveTimeout = errors.New("resolve timed out")

	// ErrLiveStreamNotAllowed is returned when the source is a live stream.
	ErrLiveStreamNotAllowed = errors.New("live streams cannot be cached")

	// ErrConnectionLost is returned when the transfer connection drops.
	ErrConnectionLost = errors.New("connection lost")

	// ErrInvalidTransition is returned when the caching state machine rejects a transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMergeUnsupported is returned when several streams need merging and no merger is available.
	ErrMergeUnsupported = errors.New("merging multiple streams is not supported")

	// ErrUnsupportedFormat is returned when a media format is unknown.
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrUnsupportedCommand is returned when the dispatcher receives an unknown command.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrNotFound is returned when a repository lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrBusy is returned when an exclusive operation is already running.
	ErrBusy = errors.New("operation already in progress")
)

// DownloadError is a non-success HTTP answer from a media server.
type DownloadError struct {
	URL        string // Stream URL
	StatusCode int    // HTTP status code
	Status     string // HTTP status text
	Err        error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of '%s' failed: %s (code: %d)", e.URL, e.Status, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a new DownloadError.
func NewDownloadError(url string, statusCode int, status string, err error) *DownloadError {
	return &DownloadError{
		URL:        url,
		StatusCode: statusCode,
		Status:     status,
		Err:        err,
	}
}

// ResolverError wraps a failure to turn a source URL into streams.
type ResolverError struct {
	SourceURL string // Source URL being resolved
	Message   string // Error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolve '%s' failed: %s", e.SourceURL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// NewResolverError creates a new ResolverError.
func NewResolverError(sourceURL, message string, err error) *ResolverError {
	return &ResolverError{
		SourceURL: sourceURL,
		Message:   message,
		Err:       err,
	}
}

// TransitionError is returned when a status change violates the state machine.
type TransitionError struct {
	From CachingStatus
	To   CachingStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to CachingStatus) *TransitionError {
	return &TransitionError{From: from, To: to}
}

// RepositoryError represents an error from a repository.
// This wraps persistence layer errors with additional context.
type RepositoryError struct {
	Op      string // Operation that failed (e.g., "save", "load", "delete")
	Type    string // Repository type (e.g., "catalog", "history", "settings")
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Type:    repoType,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g., "CacheOrchestrator", "CommandDispatcher")
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// FailureCode extracts the notification code for a job failure.
// HTTP failures carry their status code; everything else maps to zero.
func FailureCode(err error) int {
	var dlErr *DownloadError
	if errors.As(err, &dlErr) {
		return dlErr.StatusCode
	}
	return 0
}
