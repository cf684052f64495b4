package ports

import (
	"context"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

// StatusRenderer consumes the composite status stream.
// Render is called from a single goroutine per renderer with the latest snapshot only;
// intermediate snapshots may be skipped.
type StatusRenderer interface {
	Render(snapshot domain.CacheSnapshot)
}

// StatusRendererFunc adapts a function to StatusRenderer.
type StatusRendererFunc func(snapshot domain.CacheSnapshot)

// Render calls f.
func (f StatusRendererFunc) Render(snapshot domain.CacheSnapshot) {
	f(snapshot)
}

// CommandSender is how renderers and transports send commands back to the pipeline.
type CommandSender interface {
	// Send delivers cmd and waits until it was carried out or ctx is done.
	Send(ctx context.Context, cmd domain.Command) (domain.CommandResult, error)
}

// Host is the process hosting the pipeline.
// The orchestrator only talks to its host through these callbacks.
type Host interface {
	// StartForeground is called when the loop picks up work after being parked.
	StartForeground()

	// StopSelf is called when the loop gave up waiting for work and exited.
	StopSelf()
}
