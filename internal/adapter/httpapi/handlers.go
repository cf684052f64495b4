package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// commandTimeout bounds how long a handler waits for the dispatcher.
// Cancellation awaits cleanup of the in-flight job, so it gets more room than a plain read.
const commandTimeout = 30 * time.Second

// Commands is the command producer side of the pipeline.
type Commands interface {
	ports.CommandSender
	Enqueue(ctx context.Context, req domain.CacheRequest) (domain.CacheJob, error)
}

// StatusSource exposes the most recent composite snapshot.
type StatusSource interface {
	Latest() domain.CacheSnapshot
}

// Library rebuilds the catalog from the files on disk.
type Library interface {
	Reconcile(ctx context.Context) (domain.LibraryReport, error)
}

// handler groups the API endpoints and their dependencies.
type handler struct {
	logger   *slog.Logger
	commands Commands
	status   StatusSource
	catalog  ports.CatalogRepository
	history  ports.HistoryRepository
	settings ports.SettingsRepository
	library  Library
	defaults domain.Settings
	version  string
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "tunecache",
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}

// enqueue accepts a CacheRequest body and answers 202 with the created job.
func (h *handler) enqueue(c *gin.Context) {
	var req domain.CacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	job, err := h.commands.Enqueue(ctx, req)
	if err != nil {
		h.fail(c, "enqueue", err)
		return
	}

	h.logger.Info("job enqueued over http",
		slog.String("job_id", job.ID),
		slog.String("url", job.SourceURL))
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (h *handler) cancelCurrent(c *gin.Context) {
	h.send(c, domain.CancelCurrentCommand{})
}

func (h *handler) cancelAll(c *gin.Context) {
	h.send(c, domain.CancelAllCommand{})
}

func (h *handler) send(c *gin.Context, cmd domain.Command) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	res, err := h.commands.Send(ctx, cmd)
	if err != nil {
		h.fail(c, string(cmd.Kind()), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Latest())
}

func (h *handler) listCatalog(c *gin.Context) {
	entries, err := h.catalog.List()
	if err != nil {
		h.fail(c, "list catalog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *handler) getCatalogEntry(c *gin.Context) {
	entry, err := h.catalog.Get(c.Param("id"))
	if err != nil {
		h.fail(c, "get catalog entry", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// rescanCatalog reconciles the catalog with the output directory and reports the difference.
func (h *handler) rescanCatalog(c *gin.Context) {
	report, err := h.library.Reconcile(c.Request.Context())
	if err != nil {
		h.fail(c, "rescan catalog", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) listHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := h.history.Recent(limit)
	if err != nil {
		h.fail(c, "list history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (h *handler) getSettings(c *gin.Context) {
	settings, err := h.settings.Load(h.defaults)
	if err != nil {
		h.fail(c, "load settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// putSettings overlays the body on the current settings, so absent fields keep their value.
func (h *handler) putSettings(c *gin.Context) {
	settings, err := h.settings.Load(h.defaults)
	if err != nil {
		h.fail(c, "load settings", err)
		return
	}
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.settings.Save(settings); err != nil {
		h.fail(c, "save settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// fail maps a domain error to a status code and writes it as {"error": ...}.
func (h *handler) fail(c *gin.Context, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("op", op), slog.Any("error", err))
	} else {
		h.logger.Debug("request rejected", slog.String("op", op), slog.Any("error", err))
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
