// Package domain defines events for the event-driven architecture.
// Events decouple the cache pipeline from notification, metrics and persistence consumers.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Queue events
	EventJobEnqueued  EventType = "job.enqueued"
	EventQueueCleared EventType = "queue.cleared"

	// Job lifecycle events
	EventJobStarted       EventType = "job.started"
	EventJobResolved      EventType = "job.resolved"
	EventDownloadProgress EventType = "job.progress"
	EventStatusChanged    EventType = "status.changed"

	// Terminal job events, exactly one per job
	EventJobCompleted   EventType = "job.completed"
	EventJobCancelled   EventType = "job.cancelled"
	EventJobFailed      EventType = "job.failed"
	EventConnectionLost EventType = "job.connection_lost"

	// Soft warnings
	EventTagWarning EventType = "job.tag_warning"

	// Loop lifecycle
	EventLoopIdle EventType = "loop.idle"

	// Library events
	EventLibraryReconciled EventType = "library.reconciled"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// JobEnqueuedEvent is published when a job joins the queue.
type JobEnqueuedEvent struct {
	baseEvent
	Job      CacheJob
	QueueLen int
}

// Type returns the event type.
func (e JobEnqueuedEvent) Type() EventType {
	return EventJobEnqueued
}

// NewJobEnqueuedEvent creates a new JobEnqueuedEvent.
func NewJobEnqueuedEvent(job CacheJob, queueLen int) JobEnqueuedEvent {
	return JobEnqueuedEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
		QueueLen:  queueLen,
	}
}

// QueueClearedEvent is published when cancel-all discards pending jobs.
type QueueClearedEvent struct {
	baseEvent
	Removed []CacheJob
}

// Type returns the event type.
func (e QueueClearedEvent) Type() EventType {
	return EventQueueCleared
}

// NewQueueClearedEvent creates a new QueueClearedEvent.
func NewQueueClearedEvent(removed []CacheJob) QueueClearedEvent {
	return QueueClearedEvent{
		baseEvent: newBaseEvent(),
		Removed:   removed,
	}
}

// JobStartedEvent is published when the orchestrator takes a job off the queue.
type JobStartedEvent struct {
	baseEvent
	Job CacheJob
}

// Type returns the event type.
func (e JobStartedEvent) Type() EventType {
	return EventJobStarted
}

// NewJobStartedEvent creates a new JobStartedEvent.
func NewJobStartedEvent(job CacheJob) JobStartedEvent {
	return JobStartedEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
	}
}

// JobResolvedEvent is published once the resolver returned the streams of a job.
type JobResolvedEvent struct {
	baseEvent
	Job      CacheJob
	Metadata MediaMetadata
	Streams  int
}

// Type returns the event type.
func (e JobResolvedEvent) Type() EventType {
	return EventJobResolved
}

// NewJobResolvedEvent creates a new JobResolvedEvent.
func NewJobResolvedEvent(job CacheJob, media ResolvedMedia) JobResolvedEvent {
	return JobResolvedEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
		Metadata:  media.Metadata,
		Streams:   len(media.StreamURLs),
	}
}

// DownloadProgressEvent is published after each chunk is written.
type DownloadProgressEvent struct {
	baseEvent
	JobID    string
	Progress DownloadProgress
	Delta    int64 // Bytes written since the previous event
}

// Type returns the event type.
func (e DownloadProgressEvent) Type() EventType {
	return EventDownloadProgress
}

// NewDownloadProgressEvent creates a new DownloadProgressEvent.
func NewDownloadProgressEvent(jobID string, progress DownloadProgress, delta int64) DownloadProgressEvent {
	return DownloadProgressEvent{
		baseEvent: newBaseEvent(),
		JobID:     jobID,
		Progress:  progress,
		Delta:     delta,
	}
}

// StatusChangedEvent is published on every caching status transition.
type StatusChangedEvent struct {
	baseEvent
	From  CachingStatus
	To    CachingStatus
	JobID string
}

// Type returns the event type.
func (e StatusChangedEvent) Type() EventType {
	return EventStatusChanged
}

// NewStatusChangedEvent creates a new StatusChangedEvent.
func NewStatusChangedEvent(from, to CachingStatus, jobID string) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent(),
		From:      from,
		To:        to,
		JobID:     jobID,
	}
}

// JobCompletedEvent is published when a file lands in the library.
type JobCompletedEvent struct {
	baseEvent
	Job      CacheJob
	Entry    CatalogEntry
	Duration time.Duration // Wall time from start to completion
}

// Type returns the event type.
func (e JobCompletedEvent) Type() EventType {
	return EventJobCompleted
}

// NewJobCompletedEvent creates a new JobCompletedEvent.
func NewJobCompletedEvent(job CacheJob, entry CatalogEntry, took time.Duration) JobCompletedEvent {
	return JobCompletedEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
		Entry:     entry,
		Duration:  took,
	}
}

// JobCancelledEvent is published once for the in-flight job of a cancel request.
type JobCancelledEvent struct {
	baseEvent
	Job CacheJob
	All bool // True when the cancel came from cancel-all
}

// Type returns the event type.
func (e JobCancelledEvent) Type() EventType {
	return EventJobCancelled
}

// NewJobCancelledEvent creates a new JobCancelledEvent.
func NewJobCancelledEvent(job CacheJob, all bool) JobCancelledEvent {
	return JobCancelledEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
		All:       all,
	}
}

// JobFailedEvent is published when a job is dropped because of an error.
type JobFailedEvent struct {
	baseEvent
	Job         CacheJob
	Code        int // HTTP status code, or zero
	Description string
	Err         error
}

// Type returns the event type.
func (e JobFailedEvent) Type() EventType {
	return EventJobFailed
}

// NewJobFailedEvent creates a new JobFailedEvent.
func NewJobFailedEvent(job CacheJob, err error) JobFailedEvent {
	return JobFailedEvent{
		baseEvent:   newBaseEvent(),
		Job:         job,
		Code:        FailureCode(err),
		Description: err.Error(),
		Err:         err,
	}
}

// ConnectionLostEvent is published when the transfer connection drops mid-stream.
type ConnectionLostEvent struct {
	baseEvent
	Job   CacheJob
	Bytes int64 // Bytes received before the drop
	Err   error
}

// Type returns the event type.
func (e ConnectionLostEvent) Type() EventType {
	return EventConnectionLost
}

// NewConnectionLostEvent creates a new ConnectionLostEvent.
func NewConnectionLostEvent(job CacheJob, bytes int64, err error) ConnectionLostEvent {
	return ConnectionLostEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
		Bytes:     bytes,
		Err:       err,
	}
}

// TagWarningEvent is published when tagging or cataloguing a finished file fails.
// The job is still reported as completed.
type TagWarningEvent struct {
	baseEvent
	Job  CacheJob
	Path string
	Err  error
}

// Type returns the event type.
func (e TagWarningEvent) Type() EventType {
	return EventTagWarning
}

// NewTagWarningEvent creates a new TagWarningEvent.
func NewTagWarningEvent(job CacheJob, path string, err error) TagWarningEvent {
	return TagWarningEvent{
		baseEvent: newBaseEvent(),
		Job:       job,
		Path:      path,
		Err:       err,
	}
}

// LoopIdleEvent is published when the consumer loop gives up waiting and stops.
type LoopIdleEvent struct {
	baseEvent
	Waited time.Duration
}

// Type returns the event type.
func (e LoopIdleEvent) Type() EventType {
	return EventLoopIdle
}

// NewLoopIdleEvent creates a new LoopIdleEvent.
func NewLoopIdleEvent(waited time.Duration) LoopIdleEvent {
	return LoopIdleEvent{
		baseEvent: newBaseEvent(),
		Waited:    waited,
	}
}

// LibraryReconciledEvent is published after the catalog was matched against the output directory.
type LibraryReconciledEvent struct {
	baseEvent
	Added   int
	Removed int
	Kept    int
}

// Type returns the event type.
func (e LibraryReconciledEvent) Type() EventType {
	return EventLibraryReconciled
}

// NewLibraryReconciledEvent creates a new LibraryReconciledEvent.
func NewLibraryReconciledEvent(added, removed, kept int) LibraryReconciledEvent {
	return LibraryReconciledEvent{
		baseEvent: newBaseEvent(),
		Added:     added,
		Removed:   removed,
		Kept:      kept,
	}
}
