// Package service provides the cache pipeline: queue, status, orchestration and cancellation.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

// JobQueue is an unbounded FIFO of pending jobs with a wait/notify primitive for its
// single consumer. Producers may call Enqueue from any goroutine.
//
// The notify signal is a one-slot channel: an Enqueue with nobody waiting leaves the
// slot filled, so the next Wait returns immediately and the consumer rechecks the queue.
type JobQueue struct {
	mu     sync.Mutex
	jobs   []domain.CacheJob
	signal chan struct{}

	// onLen observes every length change. Called with mu held so observers see lengths in order.
	onLen func(int)
}

// NewJobQueue creates an empty queue. onLen may be nil.
func NewJobQueue(onLen func(int)) *JobQueue {
	if onLen == nil {
		onLen = func(int) {}
	}
	return &JobQueue{
		signal: make(chan struct{}, 1),
		onLen:  onLen,
	}
}

// Enqueue appends job to the tail and wakes the consumer if it is parked.
// Returns the new queue length.
func (q *JobQueue) Enqueue(job domain.CacheJob) int {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	n := len(q.jobs)
	q.onLen(n)
	q.mu.Unlock()

	q.notify()
	return n
}

// Dequeue pops the head of the queue. The boolean is false when the queue is empty.
func (q *JobQueue) Dequeue() (domain.CacheJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return domain.CacheJob{}, false
	}

	job := q.jobs[0]
	q.jobs[0] = domain.CacheJob{}
	q.jobs = q.jobs[1:]
	q.onLen(len(q.jobs))
	return job, true
}

// Wait parks the caller until a job is enqueued, the timeout elapses or ctx is done.
//
// It returns nil on a notify (which may be stale, so the caller must recheck the queue),
// domain.ErrWaitTimeout on timeout and ctx.Err() on cancellation. A timeout <= 0 waits
// without limit.
func (q *JobQueue) Wait(ctx context.Context, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-q.signal:
		return nil
	case <-expired:
		return domain.ErrWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear empties the queue and returns the discarded jobs in queue order.
func (q *JobQueue) Clear() []domain.CacheJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.jobs
	q.jobs = nil
	q.onLen(0)
	return removed
}

// Len returns the number of pending jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Pending returns a copy of the pending jobs in processing order.
func (q *JobQueue) Pending() []domain.CacheJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]domain.CacheJob, len(q.jobs))
	copy(jobs, q.jobs)
	return jobs
}

func (q *JobQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
