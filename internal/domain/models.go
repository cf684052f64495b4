// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the tunecache media pipeline.
package domain

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// CacheJob is one requested download of a remote stream into the local library.
// A job is immutable once enqueued and is consumed exactly once by the orchestrator.
type CacheJob struct {
	// ID is a unique identifier for the job (UUID)
	ID string `json:"id"`

	// SourceURL is the externally resolvable location (a video page or a direct media URL)
	SourceURL string `json:"source_url"`

	// DesiredFilename is the sanitized output base name, without extension
	DesiredFilename string `json:"desired_filename"`

	// SaveAsVideo selects the video container instead of an audio-only output
	SaveAsVideo bool `json:"save_as_video"`

	// Format is the output container
	Format MediaFormat `json:"format"`

	// EnqueuedAt is when the job entered the queue
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// CacheRequest is what a producer submits to create a CacheJob.
type CacheRequest struct {
	SourceURL       string      `json:"url"`
	DesiredFilename string      `json:"filename"`
	SaveAsVideo     bool        `json:"save_as_video"`
	Format          MediaFormat `json:"format,omitempty"`
}

// NewCacheJob validates a request and builds an immutable job from it.
// An empty format falls back to defaultFormat; SaveAsVideo always selects MP4.
func NewCacheJob(id string, req CacheRequest, defaultFormat MediaFormat) (CacheJob, error) {
	source := strings.TrimSpace(req.SourceURL)
	if source == "" {
		return CacheJob{}, NewValidationError("url", req.SourceURL, "source url is required")
	}
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return CacheJob{}, NewValidationError("url", req.SourceURL, "source url must be absolute")
	}

	name := req.DesiredFilename
	if strings.TrimSpace(name) == "" {
		name = FilenameFromURL(source)
	}
	name = SanitizeFilename(name)
	if name == "" {
		return CacheJob{}, NewValidationError("filename", req.DesiredFilename, "filename is empty after sanitizing")
	}

	format := req.Format
	if format == "" {
		format = defaultFormat
	}
	if req.SaveAsVideo {
		format = FormatMP4
	}
	if !format.IsValid() {
		return CacheJob{}, NewValidationError("format", req.Format, ErrUnsupportedFormat.Error())
	}

	return CacheJob{
		ID:              id,
		SourceURL:       source,
		DesiredFilename: name,
		SaveAsVideo:     req.SaveAsVideo,
		Format:          format,
		EnqueuedAt:      time.Now(),
	}, nil
}

// SanitizeFilename strips path separators and characters that most filesystems reject.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	// Leading dots would produce hidden files or "." / ".."
	return strings.TrimLeft(strings.TrimSpace(b.String()), ".")
}

// FilenameFromURL derives a base name from the last path segment of a URL.
func FilenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	// Video pages usually carry the id in ?v=
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return u.Host
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// MediaFormat is the output container of a cached file.
type MediaFormat string

const (
	FormatMP3 MediaFormat = "mp3"
	FormatWAV MediaFormat = "wav"
	FormatAAC MediaFormat = "aac"
	FormatMP4 MediaFormat = "mp4"
)

// IsValid reports whether f is a known format.
func (f MediaFormat) IsValid() bool {
	switch f {
	case FormatMP3, FormatWAV, FormatAAC, FormatMP4:
		return true
	default:
		return false
	}
}

// Extension returns the file extension including the dot.
func (f MediaFormat) Extension() string {
	return "." + string(f)
}

// MimeType returns the MIME type used when registering the file.
func (f MediaFormat) MimeType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/x-wav"
	case FormatAAC:
		return "audio/aac"
	case FormatMP4:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// IsVideo reports whether the container carries a video track.
func (f MediaFormat) IsVideo() bool {
	return f == FormatMP4
}

// ParseMediaFormat parses a case-insensitive format name, with or without a leading dot.
func ParseMediaFormat(s string) (MediaFormat, error) {
	f := MediaFormat(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if !f.IsValid() {
		return "", NewValidationError("format", s, ErrUnsupportedFormat.Error())
	}
	return f, nil
}

// MediaMetadata describes the resolved stream.
// All fields are comparable so snapshots embedding it can be compared with ==.
type MediaMetadata struct {
	Title          string `json:"title,omitempty"`
	Author         string `json:"author,omitempty"`
	DurationMillis int64  `json:"duration_ms"`
	IsLiveStream   bool   `json:"is_live"`
	CoverURL       string `json:"cover_url,omitempty"`
}

// UntitledStream is shown when a stream carries no title.
const UntitledStream = "Untitled stream"

// DisplayTitle returns the title, or a fallback when the stream has none.
func (m MediaMetadata) DisplayTitle() string {
	if strings.TrimSpace(m.Title) == "" {
		return UntitledStream
	}
	if m.Author != "" {
		return m.Author + " - " + m.Title
	}
	return m.Title
}

// Duration returns the stream duration.
func (m MediaMetadata) Duration() time.Duration {
	return time.Duration(m.DurationMillis) * time.Millisecond
}

// ResolvedMedia is the resolver's answer for a job. It lives only while the job is in flight.
type ResolvedMedia struct {
	// StreamURLs holds one URL for muxed or audio-only media,
	// or separate video and audio tracks that are merged while finalizing.
	StreamURLs []string
	Metadata   MediaMetadata
}

// DownloadProgress is the byte counter of the current job.
type DownloadProgress struct {
	BytesTransferred int64 `json:"bytes_transferred"`
	TotalBytes       int64 `json:"total_bytes"`
}

// Percentage returns the completion percentage (0-100), or -1 if the total is unknown.
func (p DownloadProgress) Percentage() float64 {
	if p.TotalBytes <= 0 {
		return -1
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes) * 100.0
}

// CacheSnapshot is the composite status handed to renderers.
// It is comparable so the publisher can drop identical consecutive snapshots.
type CacheSnapshot struct {
	Status   CachingStatus    `json:"status"`
	Job      CacheJob         `json:"job"`
	Metadata MediaMetadata    `json:"metadata"`
	QueueLen int              `json:"queue_len"`
	Progress DownloadProgress `json:"progress"`
}

// HasJob reports whether the snapshot refers to a job.
func (s CacheSnapshot) HasJob() bool {
	return s.Job.ID != ""
}

// CatalogEntry describes a file that finished caching.
type CatalogEntry struct {
	ID             string      `json:"id"`
	SourceURL      string      `json:"source_url"`
	Path           string      `json:"path"`
	Title          string      `json:"title"`
	Author         string      `json:"author"`
	DurationMillis int64       `json:"duration_ms"`
	Format         MediaFormat `json:"format"`
	SizeBytes      int64       `json:"size_bytes"`
	DetectedType   string      `json:"detected_type,omitempty"`
	Tagged         bool        `json:"tagged"`
	CachedAt       time.Time   `json:"cached_at"`
}

// JobOutcome is the terminal result of a job.
type JobOutcome string

const (
	OutcomeCompleted      JobOutcome = "completed"
	OutcomeCanceled       JobOutcome = "canceled"
	OutcomeCanceledAll    JobOutcome = "canceled_all"
	OutcomeFailed         JobOutcome = "failed"
	OutcomeConnectionLost JobOutcome = "connection_lost"
)

// HistoryRecord is one terminal outcome kept in the job history.
type HistoryRecord struct {
	Job         CacheJob   `json:"job"`
	Outcome     JobOutcome `json:"outcome"`
	Code        int        `json:"code,omitempty"`
	Description string     `json:"description,omitempty"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// Settings are the user defaults applied to requests that leave fields empty.
type Settings struct {
	DefaultFormat MediaFormat `json:"default_format"`
	SaveAsVideo   bool        `json:"save_as_video"`
}

// LibraryReport summarizes one reconcile pass.
type LibraryReport struct {
	Added   []CatalogEntry `json:"added"`
	Removed []CatalogEntry `json:"removed"`
	Kept    int            `json:"kept"`
	Took    time.Duration  `json:"took_ns"`
}
