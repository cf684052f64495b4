// Package metrics exposes Prometheus metrics for the cache pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const namespace = "tunecache"

// allStatuses lists every status so the status gauge exposes each series from the start.
var allStatuses = []domain.CachingStatus{
	domain.StatusIdle,
	domain.StatusDownloading,
	domain.StatusFinalizing,
	domain.StatusCompleted,
	domain.StatusCanceledCurrent,
	domain.StatusCanceledAll,
	domain.StatusConnectionError,
	domain.StatusFailed,
}

// Metrics holds all application metrics.
type Metrics struct {
	registry prometheus.Gatherer

	// Job metrics
	JobsEnqueued      prometheus.Counter
	JobsStarted       prometheus.Counter
	JobsCompleted     prometheus.Counter
	JobsFailed        *prometheus.CounterVec
	JobsCancelled     *prometheus.CounterVec
	ConnectionsLost   prometheus.Counter
	TagWarnings       prometheus.Counter
	DownloadBytes     prometheus.Counter
	JobDuration       prometheus.Histogram
	QueueClearedTotal prometheus.Counter

	// Pipeline state
	QueueLength prometheus.Gauge
	Status      *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	mu   sync.Mutex
	bus  ports.FilteringEventBus
	subs []domain.SubscriptionID
}

// New creates all metrics and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Total number of jobs accepted into the queue",
		}),
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Total number of jobs taken off the queue",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total number of jobs cached successfully",
		}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Total number of failed jobs by failure code (0 when not an HTTP failure)",
		}, []string{"code"}),
		JobsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "cancelled_total",
			Help:      "Total number of in-flight jobs stopped by a cancel request",
		}, []string{"scope"}),
		ConnectionsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "connection_lost_total",
			Help:      "Total number of jobs that lost their connection mid-transfer",
		}),
		TagWarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "tag_warnings_total",
			Help:      "Total number of completed jobs whose tagging or catalog update failed",
		}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded across all jobs",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Histogram of completed job duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		QueueClearedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "discarded_total",
			Help:      "Total number of queued jobs discarded by cancel-all",
		}),

		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "length",
			Help:      "Number of jobs waiting in the queue",
		}),
		Status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "status",
			Help:      "Current caching status (1 for the active status, 0 otherwise)",
		}, []string{"status"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.setStatus(domain.StatusIdle)
	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// countedEvents feed the counters unfiltered.
var countedEvents = []domain.EventType{
	domain.EventJobEnqueued,
	domain.EventQueueCleared,
	domain.EventJobStarted,
	domain.EventJobCompleted,
	domain.EventJobFailed,
	domain.EventJobCancelled,
	domain.EventConnectionLost,
	domain.EventTagWarning,
}

// Subscribe feeds the counters from bus until Unsubscribe is called.
// Progress events reach the handler only when they moved bytes.
func (m *Metrics) Subscribe(bus ports.FilteringEventBus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
	for _, t := range countedEvents {
		m.subs = append(m.subs, bus.Subscribe(t, m.handle))
	}
	m.subs = append(m.subs, bus.SubscribeFiltered(domain.EventDownloadProgress, movedBytes, m.handle))
}

// movedBytes keeps progress events with a positive delta. Counter.Add panics on
// a negative value.
func movedBytes(event domain.Event) bool {
	e, ok := event.(domain.DownloadProgressEvent)
	return ok && e.Delta > 0
}

// Unsubscribe stops listening to the bus.
func (m *Metrics) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.subs {
		m.bus.Unsubscribe(id)
	}
	m.subs = nil
}

func (m *Metrics) handle(event domain.Event) {
	switch e := event.(type) {
	case domain.JobEnqueuedEvent:
		m.JobsEnqueued.Inc()
	case domain.QueueClearedEvent:
		m.QueueClearedTotal.Add(float64(len(e.Removed)))
	case domain.JobStartedEvent:
		m.JobsStarted.Inc()
	case domain.DownloadProgressEvent:
		m.DownloadBytes.Add(float64(e.Delta))
	case domain.JobCompletedEvent:
		m.JobsCompleted.Inc()
		m.JobDuration.Observe(e.Duration.Seconds())
	case domain.JobFailedEvent:
		m.JobsFailed.WithLabelValues(strconv.Itoa(e.Code)).Inc()
	case domain.JobCancelledEvent:
		scope := "current"
		if e.All {
			scope = "all"
		}
		m.JobsCancelled.WithLabelValues(scope).Inc()
	case domain.ConnectionLostEvent:
		m.ConnectionsLost.Inc()
	case domain.TagWarningEvent:
		m.TagWarnings.Inc()
	}
}

// Render implements ports.StatusRenderer: gauges follow the composite status.
func (m *Metrics) Render(s domain.CacheSnapshot) {
	m.QueueLength.Set(float64(s.QueueLen))
	m.setStatus(s.Status)
}

func (m *Metrics) setStatus(current domain.CachingStatus) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.Status.WithLabelValues(s.String()).Set(v)
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

var _ ports.StatusRenderer = (*Metrics)(nil)
