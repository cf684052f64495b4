package app

import (
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// processHost is the ports.Host of a desktop or server process.
// StartForeground only logs. StopSelf ends Run when the process exits on idle
// and only logs otherwise, since a later enqueue restarts the loop.
type processHost struct {
	logger       *slog.Logger
	exitWhenIdle bool

	once sync.Once
	done chan struct{}
}

func newProcessHost(logger *slog.Logger, exitWhenIdle bool) *processHost {
	return &processHost{
		logger:       logger,
		exitWhenIdle: exitWhenIdle,
		done:         make(chan struct{}),
	}
}

func (h *processHost) StartForeground() {
	h.logger.Info("pipeline active")
}

func (h *processHost) StopSelf() {
	if !h.exitWhenIdle {
		h.logger.Info("pipeline parked until the next job")
		return
	}
	h.once.Do(func() { close(h.done) })
}

// Done is closed once StopSelf asks the process to exit.
func (h *processHost) Done() <-chan struct{} {
	return h.done
}

var _ ports.Host = (*processHost)(nil)
