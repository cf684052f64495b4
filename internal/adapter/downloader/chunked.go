// Package downloader implements ports.Downloader over plain HTTP.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// DefaultChunkSize is the read buffer size between cancellation checks.
const DefaultChunkSize = 8 * 1024

// ChunkedDownloader streams a GET response into the destination writer one buffer
// at a time. Before every read it checks the request's IsActive callback and the context,
// so a cancel takes effect within one chunk.
//
// It never retries; a dropped connection surfaces as a ConnectionError result.
type ChunkedDownloader struct {
	logger    *slog.Logger
	client    *http.Client
	chunkSize int
	userAgent string
}

// Option configures a ChunkedDownloader.
type Option func(*ChunkedDownloader)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(d *ChunkedDownloader) { d.client = c }
}

// WithChunkSize sets the read buffer size. Values <= 0 keep the default.
func WithChunkSize(n int) Option {
	return func(d *ChunkedDownloader) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(d *ChunkedDownloader) { d.userAgent = ua }
}

// New creates a downloader. Without WithClient it uses a client with no overall
// timeout, since large media transfers legitimately take long.
func New(logger *slog.Logger, opts ...Option) *ChunkedDownloader {
	d := &ChunkedDownloader{
		logger:    logger.With(slog.String("component", "downloader")),
		client:    &http.Client{},
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download implements ports.Downloader.
func (d *ChunkedDownloader) Download(ctx context.Context, req ports.DownloadRequest) domain.DownloadResult {
	if !d.active(ctx, req) {
		return domain.Canceled(0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return domain.Failed(domain.NewDownloadError(req.URL, 0, "invalid request", err))
	}
	if d.userAgent != "" {
		httpReq.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Canceled(0)
		}
		return domain.ConnectionFailed(0, fmt.Errorf("%w: %w", domain.ErrConnectionLost, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Debug("server refused stream",
			slog.String("url", req.URL),
			slog.Int("status", resp.StatusCode))
		return domain.Failed(domain.NewDownloadError(req.URL, resp.StatusCode, resp.Status, nil))
	}

	total := resp.ContentLength
	buf := make([]byte, d.chunkSize)
	var written int64

	for {
		if !d.active(ctx, req) {
			return domain.Canceled(written)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			w, err := req.Dest.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return domain.Failed(domain.NewDownloadError(req.URL, resp.StatusCode, "write to destination failed", err))
			}
			if req.OnProgress != nil {
				req.OnProgress(written, total)
			}
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF):
			if total > 0 && written < total {
				return domain.ConnectionFailed(written, fmt.Errorf("%w: body ended after %d of %d bytes", domain.ErrConnectionLost, written, total))
			}
			return domain.Succeeded(resp.StatusCode, resp.Status, written)
		case ctx.Err() != nil:
			return domain.Canceled(written)
		default:
			return domain.ConnectionFailed(written, fmt.Errorf("%w: %w", domain.ErrConnectionLost, readErr))
		}
	}
}

func (d *ChunkedDownloader) active(ctx context.Context, req ports.DownloadRequest) bool {
	if ctx.Err() != nil {
		return false
	}
	return req.IsActive == nil || req.IsActive()
}

var _ ports.Downloader = (*ChunkedDownloader)(nil)
