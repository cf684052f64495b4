package service

import (
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/mock"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
)

const eventuallyTimeout = 2 * time.Second

// fakeCatalog is an in-memory ports.CatalogRepository.
type fakeCatalog struct {
	mu      sync.Mutex
	entries map[string]domain.CatalogEntry
	failAdd error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entries: make(map[string]domain.CatalogEntry)}
}

func (c *fakeCatalog) Add(entry domain.CatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAdd != nil {
		return c.failAdd
	}
	c.entries[entry.ID] = entry
	return nil
}

func (c *fakeCatalog) Get(id string) (domain.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return domain.CatalogEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (c *fakeCatalog) List() ([]domain.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out, nil
}

func (c *fakeCatalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *fakeCatalog) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]domain.CatalogEntry)
	return nil
}

// eventLog records every event published on a bus, in order.
type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func newEventLog(bus *eventbus.SyncEventBus) *eventLog {
	l := &eventLog{}
	bus.SubscribeAll(func(e domain.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, e)
	})
	return l
}

func (l *eventLog) all() []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

func (l *eventLog) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range l.all() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) waitFor(t *testing.T, eventType domain.EventType, n int) []domain.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(l.ofType(eventType)) >= n
	}, eventuallyTimeout, 5*time.Millisecond, "waiting for %d %s events", n, eventType)
	return l.ofType(eventType)
}

// statusChanges returns the transitions of jobID as "from->to" strings.
func (l *eventLog) statusChanges(jobID string) []string {
	var out []string
	for _, e := range l.ofType(domain.EventStatusChanged) {
		sc := e.(domain.StatusChangedEvent)
		if sc.JobID == jobID {
			out = append(out, sc.From.String()+"->"+sc.To.String())
		}
	}
	return out
}

// pipelineHarness wires the real queue, store, publisher and orchestrator to mock adapters.
type pipelineHarness struct {
	bus          *eventbus.SyncEventBus
	publisher    *StatusPublisher
	store        *StatusStore
	queue        *JobQueue
	orchestrator *CacheOrchestrator
	controller   *CancellationController

	resolver   *mock.Resolver
	downloader *mock.Downloader
	transcoder *mock.Transcoder
	tagger     *mock.TagWriter
	host       *mock.Host
	catalog    *fakeCatalog
	events     *eventLog
	cfg        OrchestratorConfig
}

func newPipelineHarness(t *testing.T, idleTimeout time.Duration) *pipelineHarness {
	t.Helper()

	root := t.TempDir()
	log := logger.NewTestLogger(t)

	h := &pipelineHarness{
		bus:        eventbus.NewSyncEventBus(log),
		publisher:  NewStatusPublisher(log),
		resolver:   mock.NewResolver(),
		downloader: mock.NewDownloader(),
		transcoder: mock.NewTranscoder(),
		tagger:     mock.NewTagWriter(),
		host:       mock.NewHost(),
		catalog:    newFakeCatalog(),
		cfg: OrchestratorConfig{
			WorkDir:     root + "/work",
			OutputDir:   root + "/library",
			IdleTimeout: idleTimeout,
		},
	}
	h.events = newEventLog(h.bus)
	h.store = NewStatusStore(h.publisher, h.bus)
	h.queue = NewJobQueue(h.store.SetQueueLen)
	h.orchestrator = NewCacheOrchestrator(log, h.queue, h.store, h.bus,
		h.resolver, h.downloader, h.transcoder, h.tagger, h.catalog, h.host, h.cfg)
	h.controller = NewCancellationController(log, h.orchestrator, h.bus)
	return h
}

func (h *pipelineHarness) shutdown(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orchestrator.Shutdown())
	h.publisher.Close()
	_ = h.bus.Close()
}

// waitStarted blocks until the downloader begins a transfer.
func (h *pipelineHarness) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case url := <-h.downloader.Started():
		return url
	case <-time.After(eventuallyTimeout):
		t.Fatal("download never started")
		return ""
	}
}

func (h *pipelineHarness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, busy := h.orchestrator.Current()
		return !busy && h.store.Status() == domain.StatusIdle
	}, eventuallyTimeout, 5*time.Millisecond)
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func testJob(id string) domain.CacheJob {
	return domain.CacheJob{
		ID:              id,
		SourceURL:       "https://media.example.com/" + id + ".mp3",
		DesiredFilename: id,
		Format:          domain.FormatMP3,
		EnqueuedAt:      time.Now(),
	}
}
