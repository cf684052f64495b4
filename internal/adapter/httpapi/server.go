// Package httpapi exposes the cache pipeline over HTTP: job commands, status, catalog,
// history and settings under /api, plus the websocket stream and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Metrics is the Prometheus side of the API: the scrape handler and a request recorder.
type Metrics interface {
	RequestRecorder
	Handler() http.Handler
}

// Deps are the collaborators behind the routes.
// Stream and Metrics are optional; their routes are not registered when nil.
type Deps struct {
	Commands Commands
	Status   StatusSource
	Catalog  ports.CatalogRepository
	History  ports.HistoryRepository
	Settings ports.SettingsRepository
	Library  Library
	Defaults domain.Settings
	Stream   http.Handler
	Metrics  Metrics
	Version  string
}

// Options configure the listener.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Server owns the gin engine and the http.Server around it.
type Server struct {
	logger          *slog.Logger
	engine          *gin.Engine
	server          *http.Server
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	errCh    chan error
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(logger *slog.Logger, opt Options, deps Deps) *Server {
	logger = logger.With(slog.String("component", "http"))

	if opt.Addr == "" {
		opt.Addr = defaultAddr
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = defaultShutdownTimeout
	}

	engine := NewRouter(logger, opt.CORSOrigins, deps)

	return &Server{
		logger: logger,
		engine: engine,
		server: &http.Server{
			Addr:              opt.Addr,
			Handler:           engine,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		shutdownTimeout: opt.ShutdownTimeout,
		errCh:           make(chan error, 1),
	}
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(logger *slog.Logger, corsOrigins []string, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(logger), corsMiddleware(corsOrigins))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	h := &handler{
		logger:   logger,
		commands: deps.Commands,
		status:   deps.Status,
		catalog:  deps.Catalog,
		history:  deps.History,
		settings: deps.Settings,
		library:  deps.Library,
		defaults: deps.Defaults,
		version:  deps.Version,
	}

	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		api.POST("/jobs", h.enqueue)
		api.POST("/jobs/cancel", h.cancelCurrent)
		api.DELETE("/jobs", h.cancelAll)
		api.GET("/status", h.getStatus)

		api.GET("/catalog", h.listCatalog)
		api.GET("/catalog/:id", h.getCatalogEntry)
		api.GET("/history", h.listHistory)
		if deps.Library != nil {
			api.POST("/catalog/rescan", h.rescanCatalog)
		}

		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.putSettings)
	}

	if deps.Stream != nil {
		r.GET("/ws", gin.WrapH(deps.Stream))
	}
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background.
// A bind failure is returned directly; later serve errors arrive on Notify.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("http server already started")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Notify reports a serve failure. The channel is closed when serving stops.
func (s *Server) Notify() <-chan error {
	return s.errCh
}

// Shutdown stops accepting requests and waits for in-flight ones up to the shutdown timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
