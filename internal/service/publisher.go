package service

import (
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// StatusPublisher fans the composite status out to subscribers with combine-latest,
// conflated semantics: every change produces a fresh snapshot, and a slow subscriber
// only ever sees the most recent one. Publishing never blocks.
//
// Thread-safety: This implementation is thread-safe.
type StatusPublisher struct {
	logger *slog.Logger

	mu        sync.Mutex
	latest    domain.CacheSnapshot
	hasLatest bool
	subs      map[uint64]*Subscription
	nextID    uint64
	closed    bool

	// renderWg tracks goroutines started by Attach
	renderWg sync.WaitGroup
}

// Subscription is a conflated view of the snapshot stream.
type Subscription struct {
	id  uint64
	ch  chan domain.CacheSnapshot
	pub *StatusPublisher
}

// NewStatusPublisher creates a publisher with no snapshot yet.
func NewStatusPublisher(logger *slog.Logger) *StatusPublisher {
	return &StatusPublisher{
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Publish offers snap to every subscriber. A snapshot equal to the previous one is dropped.
func (p *StatusPublisher) Publish(snap domain.CacheSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if p.hasLatest && snap == p.latest {
		return
	}
	p.latest = snap
	p.hasLatest = true

	for _, sub := range p.subs {
		sub.offer(snap)
	}
}

// Latest returns the most recent snapshot. The zero snapshot is Idle with an empty queue.
func (p *StatusPublisher) Latest() domain.CacheSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Subscribe returns a new subscription, primed with the latest snapshot if there is one.
// After Close the returned subscription's channel is already closed.
func (p *StatusPublisher) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	sub := &Subscription{
		id:  p.nextID,
		ch:  make(chan domain.CacheSnapshot, 1),
		pub: p,
	}

	if p.closed {
		close(sub.ch)
		return sub
	}
	if p.hasLatest {
		sub.ch <- p.latest
	}
	p.subs[sub.id] = sub
	return sub
}

// Attach runs r on its own goroutine, feeding it conflated snapshots until the
// subscription or the publisher is closed.
func (p *StatusPublisher) Attach(r ports.StatusRenderer) *Subscription {
	sub := p.Subscribe()

	p.renderWg.Add(1)
	go func() {
		defer p.renderWg.Done()
		for snap := range sub.C() {
			p.render(r, snap)
		}
	}()

	return sub
}

func (p *StatusPublisher) render(r ports.StatusRenderer, snap domain.CacheSnapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("status renderer panicked",
				slog.Any("panic", rec),
				slog.String("status", snap.Status.String()))
		}
	}()
	r.Render(snap)
}

// SubscriberCount returns the number of open subscriptions.
func (p *StatusPublisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close closes every subscription and waits for attached renderers to return.
func (p *StatusPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		close(sub.ch)
		delete(p.subs, id)
	}
	p.mu.Unlock()

	p.renderWg.Wait()
}

func (p *StatusPublisher) unsubscribe(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sub, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(sub.ch)
	}
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan domain.CacheSnapshot {
	return s.ch
}

// Close ends the subscription. Calling it more than once is a no-op.
func (s *Subscription) Close() {
	s.pub.unsubscribe(s.id)
}

// offer replaces any pending snapshot with snap. Called with the publisher lock held.
func (s *Subscription) offer(snap domain.CacheSnapshot) {
	select {
	case s.ch <- snap:
		return
	default:
	}

	// Slot full: drop the stale snapshot
	select {
	case <-s.ch:
	default:
	}

	select {
	case s.ch <- snap:
	default:
	}
}
