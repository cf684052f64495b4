package notify

import (
	"log/slog"
	"sync"

	"fyne.io/fyne/v2"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// Sender delivers a desktop notification. fyne.App implements it.
type Sender interface {
	SendNotification(n *fyne.Notification)
}

// desktopEvents are the events that produce a desktop notification.
var desktopEvents = []domain.EventType{
	domain.EventJobResolved,
	domain.EventJobCompleted,
	domain.EventJobCancelled,
	domain.EventJobFailed,
	domain.EventConnectionLost,
}

// Desktop posts one system notification when a job starts transferring and one per
// terminal outcome. Progress is not shown; desktop notifications cannot be updated in place.
type Desktop struct {
	logger *slog.Logger
	sender Sender
	bus    ports.EventBus

	mu   sync.Mutex
	subs []domain.SubscriptionID
}

// NewDesktop subscribes a desktop notifier to bus.
func NewDesktop(logger *slog.Logger, sender Sender, bus ports.EventBus) *Desktop {
	d := &Desktop{
		logger: logger.With(slog.String("component", "desktop-notifier")),
		sender: sender,
		bus:    bus,
	}
	for _, t := range desktopEvents {
		d.subs = append(d.subs, bus.Subscribe(t, d.handle))
	}
	return d
}

func (d *Desktop) handle(event domain.Event) {
	n, ok := ForEvent(event)
	if !ok {
		return
	}
	d.logger.Debug("sending notification", slog.String("title", n.Title))
	d.sender.SendNotification(fyne.NewNotification(n.Title, n.Body))
}

// Close unsubscribes from the bus.
func (d *Desktop) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.subs {
		d.bus.Unsubscribe(id)
	}
	d.subs = nil
}
