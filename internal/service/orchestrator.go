package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// OrchestratorConfig holds the tunables of the consumer loop.
type OrchestratorConfig struct {
	// WorkDir receives part files while downloading
	WorkDir string

	// OutputDir receives finished files
	OutputDir string

	// IdleTimeout is how long the loop waits for work before stopping (0 = forever)
	IdleTimeout time.Duration
}

// CacheOrchestrator is the single consumer of the job queue. It resolves, downloads and
// finalizes one job at a time and converts every outcome into a status transition plus
// exactly one terminal event.
//
// The loop starts lazily on Start or Enqueue and exits after IdleTimeout without work,
// calling Host.StopSelf. A later Enqueue starts it again.
//
// Bus handlers must not call back into the orchestrator or the cancellation controller
// synchronously: some transitions are published while the orchestrator lock is held.
type CacheOrchestrator struct {
	// Dependencies (injected)
	logger     *slog.Logger
	queue      *JobQueue
	store      *StatusStore
	bus        ports.EventBus
	resolver   ports.Resolver
	downloader ports.Downloader
	transcoder ports.Transcoder
	tagger     ports.TagWriter
	catalog    ports.CatalogRepository
	host       ports.Host
	cfg        OrchestratorConfig

	// Lifetime of the service; every job context derives from it
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	// mu guards running, closed and active. The cancellation controller takes it too,
	// which makes dequeue + registration atomic with respect to cancel requests.
	mu      sync.Mutex
	running bool
	closed  bool
	active  *activeJob
	loopWg  sync.WaitGroup
}

// activeJob is the in-flight job and everything needed to stop and clean it up.
type activeJob struct {
	job       domain.CacheJob
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	filesMu sync.Mutex
	files   []string
}

func (a *activeJob) track(path string) {
	a.filesMu.Lock()
	defer a.filesMu.Unlock()
	a.files = append(a.files, path)
}

func (a *activeJob) trackedFiles() []string {
	a.filesMu.Lock()
	defer a.filesMu.Unlock()
	return append([]string(nil), a.files...)
}

// jobResult is what processing a job produced before it is settled.
type jobResult struct {
	outcome domain.JobOutcome
	err     error
	bytes   int64
	entry   domain.CatalogEntry
}

func canceledResult(n int64) jobResult {
	return jobResult{outcome: domain.OutcomeCanceled, err: domain.ErrJobCancelled, bytes: n}
}

func failedResult(err error) jobResult {
	return jobResult{outcome: domain.OutcomeFailed, err: err}
}

// NewCacheOrchestrator creates the orchestrator. The loop is not started until Start or Enqueue.
// A nil host is replaced by one that does nothing.
func NewCacheOrchestrator(
	logger *slog.Logger,
	queue *JobQueue,
	store *StatusStore,
	bus ports.EventBus,
	resolver ports.Resolver,
	downloader ports.Downloader,
	transcoder ports.Transcoder,
	tagger ports.TagWriter,
	catalog ports.CatalogRepository,
	host ports.Host,
	cfg OrchestratorConfig,
) *CacheOrchestrator {
	if host == nil {
		host = noopHost{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &CacheOrchestrator{
		logger:     logger,
		queue:      queue,
		store:      store,
		bus:        bus,
		resolver:   resolver,
		downloader: downloader,
		transcoder: transcoder,
		tagger:     tagger,
		catalog:    catalog,
		host:       host,
		cfg:        cfg,
		lifeCtx:    ctx,
		lifeCancel: cancel,
	}

	logger.Debug("cache orchestrator initialized",
		slog.String("work_dir", cfg.WorkDir),
		slog.String("output_dir", cfg.OutputDir),
		slog.Duration("idle_timeout", cfg.IdleTimeout))

	return o
}

// Start launches the consumer loop if it is not already running.
func (o *CacheOrchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return domain.ErrServiceClosed
	}
	o.startLocked()
	return nil
}

// Enqueue appends job to the queue and makes sure the loop is running.
// It is safe to call at any time, including while a job is in flight.
func (o *CacheOrchestrator) Enqueue(job domain.CacheJob) error {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return domain.ErrServiceClosed
	}

	n := o.queue.Enqueue(job)
	o.logger.Info("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("source", job.SourceURL),
		slog.Int("queue_len", n))
	o.bus.Publish(domain.NewJobEnqueuedEvent(job, n))

	// The queue is updated before checking running, so a loop that is
	// about to park either sees the job or has already cleared running.
	o.mu.Lock()
	if !o.closed {
		o.startLocked()
	}
	o.mu.Unlock()
	return nil
}

// IsRunning reports whether the consumer loop is alive.
func (o *CacheOrchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Current returns the in-flight job, if any.
func (o *CacheOrchestrator) Current() (domain.CacheJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return domain.CacheJob{}, false
	}
	return o.active.job, true
}

// Pending returns the queued jobs in processing order.
func (o *CacheOrchestrator) Pending() []domain.CacheJob {
	return o.queue.Pending()
}

// Shutdown stops the loop. An in-flight job is canceled and its files removed.
func (o *CacheOrchestrator) Shutdown() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.lifeCancel()
	o.loopWg.Wait()

	o.logger.Debug("cache orchestrator shut down")
	return nil
}

func (o *CacheOrchestrator) startLocked() {
	if o.running {
		return
	}
	o.running = true
	o.loopWg.Add(1)
	go o.loop()
}

func (o *CacheOrchestrator) loop() {
	defer o.loopWg.Done()

	o.logger.Debug("consumer loop started")
	parked := true

	for {
		active, err := o.next()
		if err != nil {
			return
		}

		if active == nil {
			parked = true
			waitErr := o.queue.Wait(o.lifeCtx, o.cfg.IdleTimeout)
			switch {
			case waitErr == nil:
				continue
			case errors.Is(waitErr, domain.ErrWaitTimeout):
				if o.park() {
					o.logger.Info("no jobs arrived, stopping consumer loop",
						slog.Duration("waited", o.cfg.IdleTimeout))
					o.bus.Publish(domain.NewLoopIdleEvent(o.cfg.IdleTimeout))
					o.host.StopSelf()
					return
				}
				continue
			default:
				o.park()
				return
			}
		}

		if parked {
			parked = false
			o.host.StartForeground()
		}
		o.run(active)
	}
}

// next dequeues a job, registers it as in flight and moves the status to Downloading,
// all under o.mu. Returns (nil, nil) when the queue is empty.
func (o *CacheOrchestrator) next() (*activeJob, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		o.running = false
		return nil, domain.ErrServiceClosed
	}

	job, ok := o.queue.Dequeue()
	if !ok {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(o.lifeCtx)
	a := &activeJob{
		job:       job,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}

	if err := o.store.BeginJob(job); err != nil {
		// The previous job always ends in Idle, so this means a bug elsewhere
		o.logger.Error("failed to begin job", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	o.active = a
	return a, nil
}

// park marks the loop stopped unless work arrived in the meantime.
func (o *CacheOrchestrator) park() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.queue.Len() > 0 && !o.closed {
		return false
	}
	o.running = false
	return true
}

func (o *CacheOrchestrator) run(a *activeJob) {
	log := o.logger.With(slog.String("job_id", a.job.ID))
	log.Info("job started", slog.String("source", a.job.SourceURL), slog.String("format", string(a.job.Format)))

	res := o.process(a, log)
	o.settle(a, res, log)

	o.mu.Lock()
	o.active = nil
	o.mu.Unlock()

	a.cancel()
	close(a.done)
}

// process runs steps resolve -> download -> finalize. Panics from collaborators are
// converted into a failed result.
func (o *CacheOrchestrator) process(a *activeJob, log *slog.Logger) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", slog.Any("panic", r))
			res = failedResult(fmt.Errorf("job panicked: %v", r))
		}
	}()

	job := a.job
	o.bus.Publish(domain.NewJobStartedEvent(job))

	for _, dir := range []string{o.cfg.WorkDir, o.cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return failedResult(fmt.Errorf("create directory %s: %w", dir, err))
		}
	}

	media, err := o.resolver.Resolve(a.ctx, job.SourceURL, job.SaveAsVideo)
	if err != nil {
		if a.ctx.Err() != nil {
			return canceledResult(0)
		}
		return failedResult(err)
	}
	if media == nil || len(media.StreamURLs) == 0 {
		return failedResult(domain.NewResolverError(job.SourceURL, "resolver returned no streams", domain.ErrStreamNotFound))
	}
	if media.Metadata.IsLiveStream {
		return failedResult(domain.NewResolverError(job.SourceURL, "source is a live stream", domain.ErrLiveStreamNotAllowed))
	}

	o.store.SetMetadata(job.ID, media.Metadata)
	o.bus.Publish(domain.NewJobResolvedEvent(job, *media))
	log.Debug("job resolved",
		slog.String("title", media.Metadata.DisplayTitle()),
		slog.Int("streams", len(media.StreamURLs)))

	parts, res, ok := o.download(a, media.StreamURLs, log)
	if !ok {
		return res
	}

	if _, swapped := o.store.TransitionFrom(job.ID, []domain.CachingStatus{domain.StatusDownloading}, domain.StatusFinalizing); !swapped {
		return canceledResult(0)
	}

	return o.finalize(a, media.Metadata, parts, log)
}

// download fetches every stream into its own part file. Progress accumulates across streams.
func (o *CacheOrchestrator) download(a *activeJob, urls []string, log *slog.Logger) ([]string, jobResult, bool) {
	job := a.job
	parts := make([]string, 0, len(urls))
	var offset int64

	for i, streamURL := range urls {
		part := filepath.Join(o.cfg.WorkDir, fmt.Sprintf("%s.%d.part", job.ID, i))
		a.track(part)

		f, err := os.Create(part)
		if err != nil {
			return nil, failedResult(fmt.Errorf("create part file: %w", err)), false
		}

		base := offset
		result := o.downloader.Download(a.ctx, ports.DownloadRequest{
			URL:  streamURL,
			Dest: f,
			IsActive: func() bool {
				return a.ctx.Err() == nil && o.store.IsDownloading(job.ID)
			},
			OnProgress: func(transferred, total int64) {
				var sum int64
				if total > 0 {
					sum = base + total
				}
				if delta, ok := o.store.UpdateProgress(job.ID, base+transferred, sum); ok && delta > 0 {
					progress := domain.DownloadProgress{BytesTransferred: base + transferred, TotalBytes: sum}
					o.bus.Publish(domain.NewDownloadProgressEvent(job.ID, progress, delta))
				}
			},
		})
		closeErr := f.Close()

		log.Debug("stream transfer finished",
			slog.Int("stream", i),
			slog.String("outcome", result.Outcome.String()),
			slog.Int64("bytes", result.Bytes))

		switch result.Outcome {
		case domain.DownloadSuccess:
			if closeErr != nil {
				return nil, failedResult(fmt.Errorf("close part file: %w", closeErr)), false
			}
			offset += result.Bytes
			parts = append(parts, part)
		case domain.DownloadCanceled:
			return nil, canceledResult(offset + result.Bytes), false
		case domain.DownloadFailure:
			return nil, failedResult(result.Err), false
		case domain.DownloadConnectionError:
			if a.ctx.Err() != nil {
				return nil, canceledResult(offset + result.Bytes), false
			}
			return nil, jobResult{
				outcome: domain.OutcomeConnectionLost,
				err:     result.Err,
				bytes:   offset + result.Bytes,
			}, false
		default:
			return nil, failedResult(fmt.Errorf("unknown download outcome %d", result.Outcome)), false
		}
	}

	return parts, jobResult{}, true
}

// finalize merges the parts into the library file, tags it and records it.
// Tagging and catalog failures are warnings; the job still completes.
func (o *CacheOrchestrator) finalize(a *activeJob, meta domain.MediaMetadata, parts []string, log *slog.Logger) jobResult {
	job := a.job

	output, err := uniquePath(o.cfg.OutputDir, job.DesiredFilename, job.Format.Extension())
	if err != nil {
		return failedResult(err)
	}
	a.track(output)

	if err := o.transcoder.Transcode(a.ctx, parts, output, job.Format); err != nil {
		if a.ctx.Err() != nil {
			return canceledResult(0)
		}
		return failedResult(fmt.Errorf("finalize: %w", err))
	}
	removeFiles(log, parts...)

	entry := domain.CatalogEntry{
		ID:             job.ID,
		SourceURL:      job.SourceURL,
		Path:           output,
		Title:          meta.Title,
		Author:         meta.Author,
		DurationMillis: meta.DurationMillis,
		Format:         job.Format,
		CachedAt:       time.Now(),
	}
	if info, err := os.Stat(output); err == nil {
		entry.SizeBytes = info.Size()
	}

	report, err := o.tagger.Write(a.ctx, output, meta, job.Format)
	switch {
	case err != nil && a.ctx.Err() != nil:
		return canceledResult(0)
	case err != nil:
		log.Warn("tagging failed, keeping file", slog.String("path", output), slog.Any("error", err))
		o.bus.Publish(domain.NewTagWarningEvent(job, output, err))
	default:
		entry.Tagged = report.Tagged
		entry.DetectedType = report.DetectedType
		if entry.Title == "" {
			entry.Title = report.Title
		}
		if entry.Author == "" {
			entry.Author = report.Artist
		}
	}

	if err := o.catalog.Add(entry); err != nil {
		log.Warn("catalog update failed", slog.String("path", output), slog.Any("error", err))
		o.bus.Publish(domain.NewTagWarningEvent(job, output, err))
	}

	if _, swapped := o.store.TransitionFrom(job.ID, []domain.CachingStatus{domain.StatusFinalizing}, domain.StatusCompleted); !swapped {
		// A cancel landed while finalizing; the file goes with it
		if err := o.catalog.Remove(job.ID); err != nil {
			log.Warn("failed to drop catalog entry of canceled job", slog.Any("error", err))
		}
		return canceledResult(0)
	}

	return jobResult{outcome: domain.OutcomeCompleted, entry: entry}
}

// settle moves the job into its terminal status, cleans up and publishes exactly one
// terminal event, then returns the status to Idle.
//
// A cancel request that won the status race overrides whatever the job itself produced.
func (o *CacheOrchestrator) settle(a *activeJob, res jobResult, log *slog.Logger) {
	job := a.job

	final := o.store.Status()
	if res.outcome != domain.OutcomeCompleted {
		want := domain.StatusCanceledCurrent
		switch res.outcome {
		case domain.OutcomeFailed:
			want = domain.StatusFailed
		case domain.OutcomeConnectionLost:
			want = domain.StatusConnectionError
		}

		active := []domain.CachingStatus{domain.StatusDownloading, domain.StatusFinalizing}
		if prev, swapped := o.store.TransitionFrom(job.ID, active, want); swapped {
			final = want
		} else {
			final = prev
		}
	}

	switch final {
	case domain.StatusCompleted:
		log.Info("job completed",
			slog.String("path", res.entry.Path),
			slog.Int64("bytes", res.entry.SizeBytes),
			slog.Duration("took", time.Since(a.startedAt)))
		o.bus.Publish(domain.NewJobCompletedEvent(job, res.entry, time.Since(a.startedAt)))

	case domain.StatusCanceledCurrent, domain.StatusCanceledAll:
		removeFiles(log, a.trackedFiles()...)
		log.Info("job canceled", slog.Bool("all", final == domain.StatusCanceledAll))
		o.bus.Publish(domain.NewJobCancelledEvent(job, final == domain.StatusCanceledAll))

	case domain.StatusConnectionError:
		removeFiles(log, a.trackedFiles()...)
		log.Warn("connection lost", slog.Int64("bytes", res.bytes), slog.Any("error", res.err))
		o.bus.Publish(domain.NewConnectionLostEvent(job, res.bytes, res.err))

	case domain.StatusFailed:
		removeFiles(log, a.trackedFiles()...)
		err := res.err
		if err == nil {
			err = errors.New("job failed")
		}
		log.Warn("job failed", slog.Any("error", err))
		o.bus.Publish(domain.NewJobFailedEvent(job, err))

	default:
		log.Error("job ended in a non-terminal status", slog.String("status", final.String()))
	}

	if err := o.store.EndJob(job.ID); err != nil {
		log.Error("failed to return to idle", slog.Any("error", err))
	}
}

// uniquePath returns dir/name+ext, adding " (n)" until the name is free.
func uniquePath(dir, name, ext string) (string, error) {
	candidate := filepath.Join(dir, name+ext)
	for i := 1; i < 1000; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", name, i, ext))
	}
	return "", fmt.Errorf("no free file name for %q", name+ext)
}

// removeFiles deletes paths, ignoring files that are already gone.
func removeFiles(log *slog.Logger, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove file", slog.String("path", p), slog.Any("error", err))
		}
	}
}

type noopHost struct{}

func (noopHost) StartForeground() {}
func (noopHost) StopSelf()        {}
