package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// CommandDispatcher is the single consumer of typed commands coming from any number of
// producers (HTTP handlers, websocket clients, the CLI). Commands run one at a time in
// arrival order, and every Send waits for its own command to finish.
type CommandDispatcher struct {
	// Dependencies (injected)
	logger       *slog.Logger
	orchestrator *CacheOrchestrator
	controller   *CancellationController
	settings     ports.SettingsRepository
	defaults     domain.Settings
	newID        func() string

	commands chan envelope
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type envelope struct {
	ctx   context.Context
	cmd   domain.Command
	reply chan reply
}

type reply struct {
	result domain.CommandResult
	err    error
}

// NewCommandDispatcher creates a dispatcher and starts its consumer goroutine.
// defaults apply when the settings repository has nothing saved.
func NewCommandDispatcher(
	logger *slog.Logger,
	orchestrator *CacheOrchestrator,
	controller *CancellationController,
	settings ports.SettingsRepository,
	defaults domain.Settings,
) *CommandDispatcher {
	d := &CommandDispatcher{
		logger:       logger,
		orchestrator: orchestrator,
		controller:   controller,
		settings:     settings,
		defaults:     defaults,
		newID:        uuid.NewString,
		commands:     make(chan envelope),
		stop:         make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Send delivers cmd and waits for its result.
// If ctx ends first the command may still run to completion.
func (d *CommandDispatcher) Send(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	if cmd == nil {
		return domain.CommandResult{}, domain.ErrUnsupportedCommand
	}

	env := envelope{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}

	select {
	case d.commands <- env:
	case <-d.stop:
		return domain.CommandResult{}, domain.ErrServiceClosed
	case <-ctx.Done():
		return domain.CommandResult{}, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.result, r.err
	case <-ctx.Done():
		return domain.CommandResult{}, ctx.Err()
	}
}

// Enqueue is shorthand for sending an EnqueueCommand.
func (d *CommandDispatcher) Enqueue(ctx context.Context, req domain.CacheRequest) (domain.CacheJob, error) {
	res, err := d.Send(ctx, domain.EnqueueCommand{Request: req})
	if err != nil {
		return domain.CacheJob{}, err
	}
	return *res.Job, nil
}

// Shutdown stops the consumer goroutine. Pending Sends fail with domain.ErrServiceClosed.
func (d *CommandDispatcher) Shutdown() error {
	d.once.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
	return nil
}

func (d *CommandDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case env := <-d.commands:
			result, err := d.execute(env.ctx, env.cmd)
			env.reply <- reply{result: result, err: err}
		case <-d.stop:
			return
		}
	}
}

func (d *CommandDispatcher) execute(ctx context.Context, cmd domain.Command) (domain.CommandResult, error) {
	d.logger.Debug("executing command", slog.String("kind", string(cmd.Kind())))

	switch c := cmd.(type) {
	case domain.EnqueueCommand:
		job, err := d.buildJob(c.Request)
		if err != nil {
			return domain.CommandResult{}, err
		}
		if err := d.orchestrator.Enqueue(job); err != nil {
			return domain.CommandResult{}, err
		}
		return domain.CommandResult{Job: &job}, nil

	case domain.CancelCurrentCommand:
		canceled, err := d.controller.CancelCurrent(ctx)
		return domain.CommandResult{Canceled: canceled}, err

	case domain.CancelAllCommand:
		removed, canceled, err := d.controller.CancelAll(ctx)
		return domain.CommandResult{Canceled: canceled, Removed: len(removed)}, err

	default:
		return domain.CommandResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedCommand, cmd.Kind())
	}
}

// buildJob fills request gaps from saved settings and validates the result.
func (d *CommandDispatcher) buildJob(req domain.CacheRequest) (domain.CacheJob, error) {
	settings := d.defaults
	if d.settings != nil {
		loaded, err := d.settings.Load(d.defaults)
		if err != nil {
			d.logger.Warn("failed to load settings, using defaults", slog.Any("error", err))
		} else {
			settings = loaded
		}
	}

	if req.Format == "" && !req.SaveAsVideo && settings.SaveAsVideo {
		req.SaveAsVideo = true
	}
	return domain.NewCacheJob(d.newID(), req, settings.DefaultFormat)
}
