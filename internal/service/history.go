package service

import (
	"log/slog"
	"time"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// HistoryRecorder writes every terminal job event to the history repository.
type HistoryRecorder struct {
	logger *slog.Logger
	repo   ports.HistoryRepository
	bus    ports.EventBus
	subs   []domain.SubscriptionID
}

// NewHistoryRecorder subscribes to the terminal events on bus.
func NewHistoryRecorder(logger *slog.Logger, repo ports.HistoryRepository, bus ports.EventBus) *HistoryRecorder {
	r := &HistoryRecorder{
		logger: logger,
		repo:   repo,
		bus:    bus,
	}

	for _, eventType := range []domain.EventType{
		domain.EventJobCompleted,
		domain.EventJobCancelled,
		domain.EventJobFailed,
		domain.EventConnectionLost,
	} {
		r.subs = append(r.subs, bus.Subscribe(eventType, r.handle))
	}

	return r
}

func (r *HistoryRecorder) handle(event domain.Event) {
	record, ok := historyRecordFor(event)
	if !ok {
		return
	}

	if err := r.repo.Record(record); err != nil {
		r.logger.Warn("failed to record job history",
			slog.String("job_id", record.Job.ID),
			slog.Any("error", err))
	}
}

func historyRecordFor(event domain.Event) (domain.HistoryRecord, bool) {
	finished := event.Timestamp()
	if finished.IsZero() {
		finished = time.Now()
	}

	switch e := event.(type) {
	case domain.JobCompletedEvent:
		return domain.HistoryRecord{Job: e.Job, Outcome: domain.OutcomeCompleted, FinishedAt: finished}, true
	case domain.JobCancelledEvent:
		outcome := domain.OutcomeCanceled
		if e.All {
			outcome = domain.OutcomeCanceledAll
		}
		return domain.HistoryRecord{Job: e.Job, Outcome: outcome, FinishedAt: finished}, true
	case domain.JobFailedEvent:
		return domain.HistoryRecord{
			Job:         e.Job,
			Outcome:     domain.OutcomeFailed,
			Code:        e.Code,
			Description: e.Description,
			FinishedAt:  finished,
		}, true
	case domain.ConnectionLostEvent:
		desc := domain.ErrConnectionLost.Error()
		if e.Err != nil {
			desc = e.Err.Error()
		}
		return domain.HistoryRecord{
			Job:         e.Job,
			Outcome:     domain.OutcomeConnectionLost,
			Description: desc,
			FinishedAt:  finished,
		}, true
	default:
		return domain.HistoryRecord{}, false
	}
}

// Shutdown unsubscribes from the bus.
func (r *HistoryRecorder) Shutdown() error {
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	r.subs = nil
	return nil
}
