package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// DefaultTimeout bounds one call to the extraction service.
const DefaultTimeout = 28 * time.Second

// reasonLiveStream is the 422 reason the extraction service gives for live sources.
const reasonLiveStream = "live_stream"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4 << 10

type resolveResponse struct {
	Streams    []string `json:"streams"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	DurationMS int64    `json:"duration_ms"`
	IsLive     bool     `json:"is_live"`
	CoverURL   string   `json:"cover_url"`
}

type errorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// HTTPResolver asks an external extraction service for the streams of a page URL:
//
//	GET {endpoint}/resolve?url=<source>&video=<bool>
type HTTPResolver struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint string
	timeout  time.Duration
}

// HTTPOption configures an HTTPResolver.
type HTTPOption func(*HTTPResolver)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPResolver) { r.client = c }
}

// WithTimeout sets the per-call timeout. Values <= 0 keep DefaultTimeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewHTTPResolver creates a resolver for the service at endpoint.
func NewHTTPResolver(logger *slog.Logger, endpoint string, opts ...HTTPOption) *HTTPResolver {
	r := &HTTPResolver{
		logger:   logger.With(slog.String("component", "resolver")),
		client:   &http.Client{},
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements ports.Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, sourceURL string, saveAsVideo bool) (*domain.ResolvedMedia, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("url", sourceURL)
	q.Set("video", strconv.FormatBool(saveAsVideo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/resolve?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.NewResolverError(sourceURL, "create request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewResolverError(sourceURL, fmt.Sprintf("no answer within %s", r.timeout), domain.ErrResolveTimeout)
		}
		return nil, domain.NewResolverError(sourceURL, "request failed", err)
	}
	defer resp.Body.Close()

	r.logger.Debug("resolve answered",
		slog.String("url", sourceURL),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewResolverError(sourceURL, "extraction service found nothing", domain.ErrStreamNotFound)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var body errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body)
		if body.Reason == reasonLiveStream {
			return nil, domain.NewResolverError(sourceURL, "source is a live stream", domain.ErrLiveStreamNotAllowed)
		}
		return nil, domain.NewResolverError(sourceURL, "unprocessable: "+body.Message, nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, domain.NewResolverError(sourceURL, "unexpected status "+resp.Status, nil)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewResolverError(sourceURL, "reading answer timed out", domain.ErrResolveTimeout)
		}
		return nil, domain.NewResolverError(sourceURL, "decode response", err)
	}
	if len(body.Streams) == 0 {
		return nil, domain.NewResolverError(sourceURL, "response has no streams", domain.ErrStreamNotFound)
	}

	return &domain.ResolvedMedia{
		StreamURLs: body.Streams,
		Metadata: domain.MediaMetadata{
			Title:          body.Title,
			Author:         body.Author,
			DurationMillis: body.DurationMS,
			IsLiveStream:   body.IsLive,
			CoverURL:       body.CoverURL,
		},
	}, nil
}

var _ ports.Resolver = (*HTTPResolver)(nil)
