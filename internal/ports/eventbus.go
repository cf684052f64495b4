package ports

import (
	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

// EventBus carries job lifecycle events from the pipeline to notifiers, metrics and history.
// Implementations must be safe for concurrent use.
type EventBus interface {
	// Publish delivers event to the subscribers of its type and to SubscribeAll handlers.
	// Handlers run on the publishing goroutine and must return quickly.
	Publish(event domain.Event)

	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe is a no-op for unknown ids.
	Unsubscribe(id domain.SubscriptionID)

	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID
	HasSubscribers(eventType domain.EventType) bool

	// Close drops every subscription. Publishing afterwards does nothing.
	Close() error
}

// EventFilter reports whether a subscriber wants event.
type EventFilter func(event domain.Event) bool

// FilteringEventBus is an EventBus whose subscriptions can carry a filter.
type FilteringEventBus interface {
	EventBus

	// SubscribeFiltered calls handler only for events of eventType that pass filter.
	// A nil filter behaves like Subscribe.
	SubscribeFiltered(eventType domain.EventType, filter EventFilter, handler domain.EventHandler) domain.SubscriptionID
}
