// Package mock provides in-memory implementations of the pipeline ports.
// They let the services be tested without network access, ffmpeg or real media files.
package mock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// Resolver is a mock implementation of ports.Resolver.
// Unknown sources resolve to a single stream with the same URL.
//
// Thread-safety: This implementation is thread-safe.
type Resolver struct {
	mu      sync.Mutex
	media   map[string]domain.ResolvedMedia
	errs    map[string]error
	delay   time.Duration
	calls   []string
	failAll error
}

// NewResolver creates a new mock resolver.
func NewResolver() *Resolver {
	return &Resolver{
		media: make(map[string]domain.ResolvedMedia),
		errs:  make(map[string]error),
	}
}

// SetMedia configures what sourceURL resolves to.
func (r *Resolver) SetMedia(sourceURL string, media domain.ResolvedMedia) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[sourceURL] = media
}

// SetError makes sourceURL fail with err.
func (r *Resolver) SetError(sourceURL string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[sourceURL] = err
}

// SetFailAll makes every call fail with err (nil to reset).
func (r *Resolver) SetFailAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = err
}

// SetDelay makes every call wait d (or until ctx ends).
func (r *Resolver) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Calls returns the source URLs resolved so far, in order.
func (r *Resolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Resolve implements ports.Resolver.
func (r *Resolver) Resolve(ctx context.Context, sourceURL string, _ bool) (*domain.ResolvedMedia, error) {
	r.mu.Lock()
	r.calls = append(r.calls, sourceURL)
	delay := r.delay
	failAll := r.failAll
	err, hasErr := r.errs[sourceURL]
	media, hasMedia := r.media[sourceURL]
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch {
	case failAll != nil:
		return nil, failAll
	case hasErr:
		return nil, err
	case hasMedia:
		return &media, nil
	}

	return &domain.ResolvedMedia{
		StreamURLs: []string{sourceURL},
		Metadata:   domain.MediaMetadata{Title: "Mock " + sourceURL, Author: "Mock Author", DurationMillis: 1000},
	}, nil
}

// Downloader is a mock implementation of ports.Downloader that writes a fixed
// payload in chunks and honors the IsActive check and ctx between chunks.
//
// Thread-safety: This implementation is thread-safe.
type Downloader struct {
	mu         sync.Mutex
	payload    []byte
	payloads   map[string][]byte
	chunkSize  int
	failStatus int
	dropAfter  int64
	gate       chan struct{}
	calls      []string
	started    chan string
}

// NewDownloader creates a mock downloader serving 64 bytes per stream in 8 byte chunks.
func NewDownloader() *Downloader {
	gate := make(chan struct{})
	close(gate)
	return &Downloader{
		payload:   make([]byte, 64),
		payloads:  make(map[string][]byte),
		chunkSize: 8,
		gate:      gate,
		started:   make(chan string, 64),
	}
}

// SetPayload sets the default body served for every stream.
func (d *Downloader) SetPayload(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payload = b
}

// SetStreamPayload sets the body served for one stream URL.
func (d *Downloader) SetStreamPayload(url string, b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads[url] = b
}

// SetChunkSize sets the write size per step.
func (d *Downloader) SetChunkSize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkSize = n
}

// SetFailStatus makes the server answer with an HTTP status (0 to reset).
func (d *Downloader) SetFailStatus(code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStatus = code
}

// SetDropAfter makes the connection drop once n bytes were written (0 to reset).
func (d *Downloader) SetDropAfter(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropAfter = n
}

// Hold makes transfers stop after each chunk until the returned release func is called.
func (d *Downloader) Hold() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// Started delivers the URL of every transfer as it begins.
func (d *Downloader) Started() <-chan string {
	return d.started
}

// Calls returns the stream URLs requested so far, in order.
func (d *Downloader) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Download implements ports.Downloader.
func (d *Downloader) Download(ctx context.Context, req ports.DownloadRequest) domain.DownloadResult {
	d.mu.Lock()
	d.calls = append(d.calls, req.URL)
	data, ok := d.payloads[req.URL]
	if !ok {
		data = d.payload
	}
	chunk := max(d.chunkSize, 1)
	failStatus := d.failStatus
	dropAfter := d.dropAfter
	gate := d.gate
	d.mu.Unlock()

	select {
	case d.started <- req.URL:
	default:
	}

	if failStatus != 0 {
		return domain.Failed(domain.NewDownloadError(req.URL, failStatus, http.StatusText(failStatus), nil))
	}

	total := int64(len(data))
	var written int64
	for written < total {
		if ctx.Err() != nil || (req.IsActive != nil && !req.IsActive()) {
			return domain.Canceled(written)
		}
		if dropAfter > 0 && written >= dropAfter {
			return domain.ConnectionFailed(written, fmt.Errorf("%w: mock reset", domain.ErrConnectionLost))
		}

		end := min(written+int64(chunk), total)
		n, err := req.Dest.Write(data[written:end])
		written += int64(n)
		if err != nil {
			return domain.Failed(domain.NewDownloadError(req.URL, http.StatusOK, "write failed", err))
		}
		if req.OnProgress != nil {
			req.OnProgress(written, total)
		}

		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	return domain.Succeeded(http.StatusOK, "200 OK", written)
}

// Transcoder is a mock implementation of ports.Transcoder that concatenates its inputs.
type Transcoder struct {
	mu    sync.Mutex
	fail  error
	calls int
}

// NewTranscoder creates a new mock transcoder.
func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// SetFail makes every call fail with err (nil to reset).
func (t *Transcoder) SetFail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = err
}

// CallCount returns how many times Transcode ran.
func (t *Transcoder) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Transcode implements ports.Transcoder.
func (t *Transcoder) Transcode(ctx context.Context, inputs []string, output string, _ domain.MediaFormat) error {
	t.mu.Lock()
	t.calls++
	fail := t.fail
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		return fail
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, in := range inputs {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// TagWriter is a mock implementation of ports.TagWriter.
type TagWriter struct {
	mu      sync.Mutex
	fail    error
	written map[string]domain.MediaMetadata
	calls   []TagCall
}

// TagCall is one Write call as received.
type TagCall struct {
	Path   string
	Meta   domain.MediaMetadata
	Format domain.MediaFormat
}

// NewTagWriter creates a new mock tag writer.
func NewTagWriter() *TagWriter {
	return &TagWriter{written: make(map[string]domain.MediaMetadata)}
}

// SetFail makes every call fail with err (nil to reset).
func (w *TagWriter) SetFail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

// Written returns the metadata written per path.
func (w *TagWriter) Written() map[string]domain.MediaMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]domain.MediaMetadata, len(w.written))
	for k, v := range w.written {
		out[k] = v
	}
	return out
}

// Calls returns every Write call in order, including failed ones.
func (w *TagWriter) Calls() []TagCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]TagCall(nil), w.calls...)
}

// Write implements ports.TagWriter.
func (w *TagWriter) Write(ctx context.Context, path string, meta domain.MediaMetadata, format domain.MediaFormat) (ports.TagReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls = append(w.calls, TagCall{Path: path, Meta: meta, Format: format})

	if err := ctx.Err(); err != nil {
		return ports.TagReport{}, err
	}
	if w.fail != nil {
		return ports.TagReport{}, w.fail
	}

	w.written[path] = meta
	return ports.TagReport{Tagged: format == domain.FormatMP3, DetectedType: string(format)}, nil
}

// Read implements ports.MetadataReader. Paths written earlier report their metadata.
func (w *TagWriter) Read(ctx context.Context, path string) (ports.TagReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ports.TagReport{}, err
	}
	if w.fail != nil {
		return ports.TagReport{}, w.fail
	}
	meta := w.written[path]
	return ports.TagReport{Title: meta.Title, Artist: meta.Author}, nil
}

// Host is a mock implementation of ports.Host that counts lifecycle calls.
type Host struct {
	mu         sync.Mutex
	foreground int
	stops      int
	stopped    chan struct{}
}

// NewHost creates a new mock host.
func NewHost() *Host {
	return &Host{stopped: make(chan struct{}, 16)}
}

// StartForeground implements ports.Host.
func (h *Host) StartForeground() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.foreground++
}

// StopSelf implements ports.Host.
func (h *Host) StopSelf() {
	h.mu.Lock()
	h.stops++
	h.mu.Unlock()

	select {
	case h.stopped <- struct{}{}:
	default:
	}
}

// Stopped delivers one value per StopSelf call.
func (h *Host) Stopped() <-chan struct{} {
	return h.stopped
}

// Counts returns how many times StartForeground and StopSelf ran.
func (h *Host) Counts() (foreground, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.foreground, h.stops
}

var (
	_ ports.Resolver   = (*Resolver)(nil)
	_ ports.Downloader = (*Downloader)(nil)
	_ ports.Transcoder = (*Transcoder)(nil)
	_ ports.TagWriter  = (*TagWriter)(nil)
	_ ports.Host       = (*Host)(nil)
)
