package service

import (
	"context"
	"log/slog"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// CancellationController stops the in-flight job (CancelCurrent) or the in-flight job
// plus everything queued (CancelAll).
//
// Both operations flip the status with a compare-and-set before returning, so the
// downloader sees the change at its next chunk boundary. Both then wait for the
// orchestrator to finish tearing the job down and remove its files.
type CancellationController struct {
	logger       *slog.Logger
	orchestrator *CacheOrchestrator
	queue        *JobQueue
	store        *StatusStore
	bus          ports.EventBus
}

// NewCancellationController creates a controller for the given orchestrator.
func NewCancellationController(
	logger *slog.Logger,
	orchestrator *CacheOrchestrator,
	bus ports.EventBus,
) *CancellationController {
	return &CancellationController{
		logger:       logger,
		orchestrator: orchestrator,
		queue:        orchestrator.queue,
		store:        orchestrator.store,
		bus:          bus,
	}
}

// CancelCurrent stops the job in Downloading or Finalizing, if any, and waits for it.
// Queued jobs are untouched. It returns whether a job was stopped.
//
// Calling it with nothing in flight is a no-op.
func (c *CancellationController) CancelCurrent(ctx context.Context) (bool, error) {
	o := c.orchestrator

	o.mu.Lock()
	a, won := c.claimLocked(domain.StatusCanceledCurrent)
	o.mu.Unlock()

	if err := c.await(ctx, a, won); err != nil {
		return won, err
	}
	return won, nil
}

// CancelAll clears the queue, then stops the in-flight job and waits for it.
// No queued job can start after it returns. It returns the discarded jobs and
// whether an in-flight job was stopped.
func (c *CancellationController) CancelAll(ctx context.Context) ([]domain.CacheJob, bool, error) {
	o := c.orchestrator

	// Clearing and claiming under the orchestrator lock leaves no window for a dequeue
	o.mu.Lock()
	removed := c.queue.Clear()
	a, won := c.claimLocked(domain.StatusCanceledAll)
	o.mu.Unlock()

	if len(removed) > 0 {
		c.logger.Info("queue cleared", slog.Int("removed", len(removed)))
		c.bus.Publish(domain.NewQueueClearedEvent(removed))
	}

	if err := c.await(ctx, a, won); err != nil {
		return removed, won, err
	}
	return removed, won, nil
}

// claimLocked flips the in-flight job to status and cancels its context.
// It reports false when there is no job or the job already reached a terminal state.
// Must be called with the orchestrator lock held.
func (c *CancellationController) claimLocked(status domain.CachingStatus) (*activeJob, bool) {
	a := c.orchestrator.active
	if a == nil {
		return nil, false
	}

	active := []domain.CachingStatus{domain.StatusDownloading, domain.StatusFinalizing}
	if _, swapped := c.store.TransitionFrom(a.job.ID, active, status); !swapped {
		return a, false
	}

	a.cancel()
	c.logger.Info("cancel requested", slog.String("job_id", a.job.ID), slog.String("status", status.String()))
	return a, true
}

// await blocks until the claimed job has stopped touching shared state, then makes
// sure its files are gone.
func (c *CancellationController) await(ctx context.Context, a *activeJob, won bool) error {
	if a == nil || !won {
		return nil
	}

	select {
	case <-a.done:
	case <-ctx.Done():
		return domain.NewServiceError("CancellationController", "await", "gave up waiting for job to stop", ctx.Err())
	}

	removeFiles(c.logger, a.trackedFiles()...)
	return nil
}
