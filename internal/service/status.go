package service

import (
	"slices"
	"sync"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// StatusStore owns the caching status, the current job, its metadata, its progress and
// the queue length. Every mutation is a single compare-and-set style step under one
// lock, so a cancel request and an in-flight progress update can never interleave.
//
// Each change is pushed to the StatusPublisher while the lock is held, which keeps the
// snapshot stream in mutation order. Status transitions are also published on the bus,
// outside the lock.
type StatusStore struct {
	mu        sync.Mutex
	snap      domain.CacheSnapshot
	publisher *StatusPublisher
	bus       ports.EventBus
}

// NewStatusStore creates a store in the Idle state and publishes the initial snapshot.
func NewStatusStore(publisher *StatusPublisher, bus ports.EventBus) *StatusStore {
	s := &StatusStore{
		snap:      domain.CacheSnapshot{Status: domain.StatusIdle},
		publisher: publisher,
		bus:       bus,
	}
	publisher.Publish(s.snap)
	return s
}

// Snapshot returns the current composite state.
func (s *StatusStore) Snapshot() domain.CacheSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Status returns the current caching status.
func (s *StatusStore) Status() domain.CachingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Status
}

// IsDownloading reports whether jobID is current and still in the Downloading state.
// The downloader polls this between chunks.
func (s *StatusStore) IsDownloading(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Status == domain.StatusDownloading && s.snap.Job.ID == jobID
}

// BeginJob moves Idle -> Downloading for job and resets metadata and progress.
func (s *StatusStore) BeginJob(job domain.CacheJob) error {
	s.mu.Lock()
	from := s.snap.Status
	if err := domain.ValidateTransition(from, domain.StatusDownloading); err != nil {
		s.mu.Unlock()
		return err
	}

	s.snap.Status = domain.StatusDownloading
	s.snap.Job = job
	s.snap.Metadata = domain.MediaMetadata{}
	s.snap.Progress = domain.DownloadProgress{}
	s.publisher.Publish(s.snap)
	s.mu.Unlock()

	s.bus.Publish(domain.NewStatusChangedEvent(from, domain.StatusDownloading, job.ID))
	return nil
}

// SetMetadata attaches resolved metadata to the current job.
// Returns false if jobID is no longer current.
func (s *StatusStore) SetMetadata(jobID string, meta domain.MediaMetadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Job.ID != jobID || !s.snap.Status.IsActive() {
		return false
	}
	s.snap.Metadata = meta
	s.publisher.Publish(s.snap)
	return true
}

// UpdateProgress records bytes transferred for jobID.
//
// The update is dropped (ok=false) when the job is no longer Downloading, for example
// because a cancel request won the race. bytesTransferred never moves backwards.
// delta is the growth since the previous accepted update.
func (s *StatusStore) UpdateProgress(jobID string, transferred, total int64) (delta int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Status != domain.StatusDownloading || s.snap.Job.ID != jobID {
		return 0, false
	}
	if transferred < s.snap.Progress.BytesTransferred {
		return 0, false
	}

	delta = transferred - s.snap.Progress.BytesTransferred
	s.snap.Progress = domain.DownloadProgress{BytesTransferred: transferred, TotalBytes: total}
	s.publisher.Publish(s.snap)
	return delta, true
}

// TransitionFrom atomically moves to `to` if the status is one of `from` and, when
// jobID is not empty, the current job is jobID. It returns the status observed and
// whether the swap happened.
func (s *StatusStore) TransitionFrom(jobID string, from []domain.CachingStatus, to domain.CachingStatus) (domain.CachingStatus, bool) {
	s.mu.Lock()
	prev := s.snap.Status
	if jobID != "" && s.snap.Job.ID != jobID {
		s.mu.Unlock()
		return prev, false
	}
	if !slices.Contains(from, prev) || !domain.CanTransition(prev, to) {
		s.mu.Unlock()
		return prev, false
	}

	s.snap.Status = to
	s.publisher.Publish(s.snap)
	current := s.snap.Job.ID
	s.mu.Unlock()

	s.bus.Publish(domain.NewStatusChangedEvent(prev, to, current))
	return prev, true
}

// EndJob returns a terminal status to Idle. The last job, metadata and progress stay
// visible until the next job begins.
func (s *StatusStore) EndJob(jobID string) error {
	s.mu.Lock()
	prev := s.snap.Status
	if s.snap.Job.ID != jobID {
		s.mu.Unlock()
		return domain.NewServiceError("StatusStore", "EndJob", "job is not current", nil)
	}
	if err := domain.ValidateTransition(prev, domain.StatusIdle); err != nil {
		s.mu.Unlock()
		return err
	}

	s.snap.Status = domain.StatusIdle
	s.publisher.Publish(s.snap)
	s.mu.Unlock()

	s.bus.Publish(domain.NewStatusChangedEvent(prev, domain.StatusIdle, jobID))
	return nil
}

// SetQueueLen records the number of pending jobs.
func (s *StatusStore) SetQueueLen(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if s.snap.QueueLen == n {
		return
	}
	s.snap.QueueLen = n
	s.publisher.Publish(s.snap)
}
