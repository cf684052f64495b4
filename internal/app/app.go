// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/downloader"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/httpapi"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/metrics"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/notify"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/resolver"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/tagging"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/transcode"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/tui"
	"github.com/tejashwikalptaru/tunecache/internal/config"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
	"github.com/tejashwikalptaru/tunecache/internal/service"
)

// oneShotIdleTimeout replaces a disabled idle timeout in one-shot mode, which
// would otherwise never exit.
const oneShotIdleTimeout = time.Second

// Mode selects how the process hosts the pipeline.
type Mode int

const (
	// ModeDaemon serves the HTTP API and keeps running after the loop goes idle.
	ModeDaemon Mode = iota

	// ModeOneShot caches the given URLs and exits once the loop goes idle.
	ModeOneShot
)

// Options are the process-level choices that do not come from the environment.
type Options struct {
	Mode Mode

	// URLs are enqueued at startup
	URLs []string

	// TUI runs the interactive dashboard in the foreground
	TUI bool

	// Stdout receives the terminal renderer (defaults to os.Stdout)
	Stdout io.Writer

	// LogOutput receives log lines (defaults to os.Stderr)
	LogOutput io.Writer

	// FyneApp allows injecting a test Fyne app (nil for production)
	FyneApp fyne.App
}

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the application lifecycle (startup, shutdown)
// - Providing a clean entry point for main.go
type Application struct {
	// Core dependencies
	logger  *slog.Logger
	cfg     *config.Config
	opts    Options
	fyneApp fyne.App
	host    *processHost

	// Infrastructure
	eventBus *eventbus.SyncEventBus
	metrics  *metrics.Metrics

	// Repositories
	catalogRepo  ports.CatalogRepository
	historyRepo  ports.HistoryRepository
	settingsRepo ports.SettingsRepository

	// Pipeline
	publisher    *service.StatusPublisher
	store        *service.StatusStore
	queue        *service.JobQueue
	orchestrator *service.CacheOrchestrator
	controller   *service.CancellationController
	dispatcher   *service.CommandDispatcher
	recorder     *service.HistoryRecorder
	library      *service.LibraryService

	// Renderers and transports
	hub        *notify.Hub
	desktop    *notify.Desktop
	renderSubs []*service.Subscription
	server     *httpapi.Server

	shutdownOnce sync.Once
}

// NewApplication creates a new application with all dependencies wired.
// Nothing runs until Run.
func NewApplication(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	app := &Application{cfg: cfg, opts: opts}

	// Step 1: Create logger
	loggerCfg := cfg.App.LoggerConfig()
	loggerCfg.Output = opts.LogOutput
	app.logger = logger.NewLogger(loggerCfg)
	app.logger.Info("initializing application",
		slog.String("app_id", cfg.App.ID),
		slog.String("version", GetVersionInfo().FullString()))

	// Step 2: Create Fyne application (preferences store and desktop notifications)
	if opts.FyneApp != nil {
		app.fyneApp = opts.FyneApp
	} else {
		app.fyneApp = fyneapp.NewWithID(cfg.App.ID)
	}

	// Step 3: Create an event bus and metrics
	app.eventBus = eventbus.NewSyncEventBus(app.logger)
	app.metrics = metrics.New(prometheus.NewRegistry())
	app.metrics.Subscribe(app.eventBus)

	// Step 4: Create repositories
	prefs := app.fyneApp.Preferences()
	app.catalogRepo = memory.NewCatalogRepository(prefs)
	app.historyRepo = memory.NewHistoryRepository(prefs, cfg.Cache.HistoryLimit)
	app.settingsRepo = memory.NewSettingsRepository(prefs)

	// Step 5: Create pipeline adapters
	var extractor ports.Resolver
	if cfg.Resolver.Endpoint != "" {
		extractor = resolver.NewHTTPResolver(app.logger, cfg.Resolver.Endpoint, resolver.WithTimeout(cfg.Resolver.Timeout))
	}
	chain := resolver.NewChain(
		resolver.NewDirectResolver(),
		extractor,
		resolver.LookupYTdlp(app.logger, cfg.Resolver.YTdlp, resolver.WithYTdlpTimeout(cfg.Resolver.Timeout)),
	)
	dl := downloader.New(app.logger,
		downloader.WithChunkSize(cfg.Cache.ChunkSize),
		downloader.WithUserAgent(cfg.Cache.UserAgent))
	transcoder := transcode.New(app.logger, cfg.Transcode.FFmpeg)
	tagger := tagging.NewWriter(app.logger)

	// Step 6: Create services (with dependency injection)
	idleTimeout := cfg.Cache.IdleTimeout
	exitWhenIdle := cfg.Cache.ExitWhenIdle || opts.Mode == ModeOneShot
	if opts.Mode == ModeOneShot && idleTimeout == 0 {
		idleTimeout = oneShotIdleTimeout
	}
	app.host = newProcessHost(app.logger.With(slog.String("component", "host")), exitWhenIdle)

	app.publisher = service.NewStatusPublisher(app.logger.With(slog.String("service", "publisher")))
	app.store = service.NewStatusStore(app.publisher, app.eventBus)
	app.queue = service.NewJobQueue(app.store.SetQueueLen)
	app.orchestrator = service.NewCacheOrchestrator(
		app.logger.With(slog.String("service", "orchestrator")),
		app.queue,
		app.store,
		app.eventBus,
		chain,
		dl,
		transcoder,
		tagger,
		app.catalogRepo,
		app.host,
		service.OrchestratorConfig{
			WorkDir:     cfg.Cache.WorkDir,
			OutputDir:   cfg.Cache.OutputDir,
			IdleTimeout: idleTimeout,
		},
	)
	app.controller = service.NewCancellationController(
		app.logger.With(slog.String("service", "cancellation")),
		app.orchestrator,
		app.eventBus,
	)
	app.dispatcher = service.NewCommandDispatcher(
		app.logger.With(slog.String("service", "dispatcher")),
		app.orchestrator,
		app.controller,
		app.settingsRepo,
		cfg.Cache.DefaultSettings(),
	)
	app.recorder = service.NewHistoryRecorder(
		app.logger.With(slog.String("service", "history")),
		app.historyRepo,
		app.eventBus,
	)

	app.library = service.NewLibraryService(app.logger, app.catalogRepo, tagger, app.eventBus, cfg.Cache.OutputDir)

	// Step 7: Attach renderers
	app.renderSubs = append(app.renderSubs, app.publisher.Attach(app.metrics))
	if cfg.Notify.Desktop {
		app.desktop = notify.NewDesktop(app.logger, app.fyneApp, app.eventBus)
	}
	if !opts.TUI && (cfg.Notify.Terminal || opts.Mode == ModeOneShot) {
		app.renderSubs = append(app.renderSubs, app.publisher.Attach(notify.NewTerminal(opts.Stdout)))
	}

	// Step 8: Create transports (daemon only)
	if opts.Mode == ModeDaemon {
		app.hub = notify.NewHub(app.logger, app.dispatcher, cfg.HTTP.CORSOrigins)
		app.renderSubs = append(app.renderSubs, app.publisher.Attach(app.hub))

		app.server = httpapi.NewServer(app.logger, httpapi.Options{
			Addr:            cfg.HTTP.Addr,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			CORSOrigins:     cfg.HTTP.CORSOrigins,
		}, httpapi.Deps{
			Commands: app.dispatcher,
			Status:   app.publisher,
			Catalog:  app.catalogRepo,
			History:  app.historyRepo,
			Settings: app.settingsRepo,
			Library:  app.library,
			Defaults: cfg.Cache.DefaultSettings(),
			Stream:   app.hub,
			Metrics:  app.metrics,
			Version:  GetVersionInfo().Version,
		})
	}

	return app, nil
}

// Run starts the pipeline and blocks until ctx is done, the TUI quits, the HTTP server
// fails, or (when exiting on idle) the loop gives up waiting for work.
func (a *Application) Run(ctx context.Context) error {
	// Files cached by an earlier run, or dropped in by hand, join the catalog
	if a.opts.Mode == ModeDaemon {
		if _, err := a.library.Reconcile(ctx); err != nil {
			a.logger.Warn("library reconcile failed", slog.Any("error", err))
		}
	}

	// Enqueue starts the loop on its own; without startup URLs it starts idle
	if len(a.opts.URLs) == 0 {
		if err := a.orchestrator.Start(); err != nil {
			return fmt.Errorf("start orchestrator: %w", err)
		}
	}

	var serverErr <-chan error
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return err
		}
		serverErr = a.server.Notify()
	}

	for _, raw := range a.opts.URLs {
		job, err := a.dispatcher.Enqueue(ctx, domain.CacheRequest{SourceURL: raw})
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", raw, err)
		}
		a.logger.Info("job queued", slog.String("job_id", job.ID), slog.String("url", job.SourceURL))
	}

	a.logger.Info("tunecache started", slog.String("addr", a.addr()))

	if a.opts.TUI {
		sub := a.publisher.Subscribe()
		defer sub.Close()
		return tui.Run(ctx, a.dispatcher, sub.C())
	}

	select {
	case <-ctx.Done():
		return nil
	case <-a.host.Done():
		a.logger.Info("pipeline idle, exiting")
		return nil
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (a *Application) addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Addr is the HTTP listen address, empty outside daemon mode.
func (a *Application) Addr() string {
	return a.addr()
}

// Dispatcher returns the command dispatcher.
func (a *Application) Dispatcher() *service.CommandDispatcher {
	return a.dispatcher
}

// Publisher returns the status publisher.
func (a *Application) Publisher() *service.StatusPublisher {
	return a.publisher
}

// Catalog returns the catalog repository.
func (a *Application) Catalog() ports.CatalogRepository {
	return a.catalogRepo
}

// History returns the history repository.
func (a *Application) History() ports.HistoryRepository {
	return a.historyRepo
}

// Shutdown gracefully shuts down the application. Calling it more than once is a no-op.
// This should be called via deferring in main.go.
func (a *Application) Shutdown() error {
	var errs []error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down application")

		// Stop taking commands first
		if a.server != nil {
			if err := a.server.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.hub != nil {
			a.hub.Close()
		}
		if err := a.dispatcher.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}

		// The in-flight job is canceled and cleaned up
		if err := a.orchestrator.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator: %w", err))
		}
		if err := a.library.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("library: %w", err))
		}

		if err := a.recorder.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
		if a.desktop != nil {
			a.desktop.Close()
		}
		a.metrics.Unsubscribe()

		for _, sub := range a.renderSubs {
			sub.Close()
		}
		a.publisher.Close()

		if err := a.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}

		a.logger.Info("application shutdown complete")
	})

	return errors.Join(errs...)
}
