package domain

import "fmt"

// CachingStatus is the lifecycle state of the pipeline. Exactly one value holds at a time.
type CachingStatus int

const (
	// StatusIdle indicates the queue is empty or the loop is between jobs
	StatusIdle CachingStatus = iota

	// StatusDownloading indicates a job is resolving or transferring bytes
	StatusDownloading

	// StatusFinalizing indicates the transfer finished and the file is being merged and tagged
	StatusFinalizing

	// StatusCompleted indicates the job's file is in the library
	StatusCompleted

	// StatusCanceledCurrent indicates only the in-flight job was stopped
	StatusCanceledCurrent

	// StatusCanceledAll indicates the in-flight job was stopped and the queue discarded
	StatusCanceledAll

	// StatusConnectionError indicates the connection dropped mid-transfer
	StatusConnectionError

	// StatusFailed indicates resolution, HTTP or finalize failure
	StatusFailed
)

var statusNames = map[CachingStatus]string{
	StatusIdle:            "idle",
	StatusDownloading:     "downloading",
	StatusFinalizing:      "finalizing",
	StatusCompleted:       "completed",
	StatusCanceledCurrent: "canceled_current",
	StatusCanceledAll:     "canceled_all",
	StatusConnectionError: "connection_error",
	StatusFailed:          "failed",
}

// String returns a human-readable representation of the caching status.
func (s CachingStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the status by name.
func (s CachingStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *CachingStatus) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown caching status %q", text)
}

// IsActive reports whether a job is in flight.
func (s CachingStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusFinalizing
}

// IsTerminal reports whether s ends a job.
func (s CachingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceledCurrent, StatusCanceledAll, StatusConnectionError, StatusFailed:
		return true
	default:
		return false
	}
}

// IsCanceled reports whether s is one of the cancellation states.
func (s CachingStatus) IsCanceled() bool {
	return s == StatusCanceledCurrent || s == StatusCanceledAll
}

var allowedTransitions = map[CachingStatus]map[CachingStatus]struct{}{
	StatusIdle: {
		StatusDownloading: {},
	},
	StatusDownloading: {
		StatusFinalizing:      {},
		StatusCanceledCurrent: {},
		StatusCanceledAll:     {},
		StatusConnectionError: {},
		StatusFailed:          {},
	},
	StatusFinalizing: {
		StatusCompleted:       {},
		StatusCanceledCurrent: {},
		StatusCanceledAll:     {},
		StatusFailed:          {},
	},
	StatusCompleted:       {StatusIdle: {}},
	StatusCanceledCurrent: {StatusIdle: {}},
	StatusCanceledAll:     {StatusIdle: {}},
	StatusConnectionError: {StatusIdle: {}},
	StatusFailed:          {StatusIdle: {}},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to CachingStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ValidateTransition returns a TransitionError when from -> to is not allowed.
func ValidateTransition(from, to CachingStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return NewTransitionError(from, to)
}

// DownloadOutcome tags the variant held by a DownloadResult.
type DownloadOutcome int

const (
	// DownloadSuccess means the body was fully written
	DownloadSuccess DownloadOutcome = iota

	// DownloadCanceled means the read loop stopped because the job is no longer downloading
	DownloadCanceled

	// DownloadFailure means the server answered with a non-success status
	DownloadFailure

	// DownloadConnectionError means the transport failed before or during the transfer
	DownloadConnectionError
)

// String returns a human-readable representation of the outcome.
func (o DownloadOutcome) String() string {
	switch o {
	case DownloadSuccess:
		return "success"
	case DownloadCanceled:
		return "canceled"
	case DownloadFailure:
		return "failure"
	case DownloadConnectionError:
		return "connection_error"
	default:
		return "unknown"
	}
}

// DownloadResult is the outcome of one chunked transfer.
// StatusCode is zero for Canceled and for connection errors raised before a response arrived.
type DownloadResult struct {
	Outcome    DownloadOutcome
	StatusCode int
	Status     string
	Bytes      int64
	Err        error
}

// Succeeded returns a success result.
func Succeeded(statusCode int, status string, n int64) DownloadResult {
	return DownloadResult{Outcome: DownloadSuccess, StatusCode: statusCode, Status: status, Bytes: n}
}

// Canceled returns a canceled result carrying the bytes written before the stop.
func Canceled(n int64) DownloadResult {
	return DownloadResult{Outcome: DownloadCanceled, Bytes: n, Err: ErrJobCancelled}
}

// Failed returns a failure result for a non-success HTTP status.
func Failed(err *DownloadError) DownloadResult {
	return DownloadResult{Outcome: DownloadFailure, StatusCode: err.StatusCode, Status: err.Status, Err: err}
}

// ConnectionFailed returns a connection error result.
func ConnectionFailed(n int64, err error) DownloadResult {
	return DownloadResult{Outcome: DownloadConnectionError, Bytes: n, Err: err}
}
