// Package ports define the collaborators of the cache pipeline.
// The orchestrator depends only on these interfaces; adapters provide the implementations.
package ports

import (
	"context"
	"io"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

// Resolver turns a source URL into concrete stream URLs plus metadata.
//
// Implementations may fail with domain.ErrStreamNotFound, domain.ErrResolveTimeout or
// domain.ErrLiveStreamNotAllowed; the orchestrator treats every error as a job failure.
// Implementations must return promptly once ctx is canceled.
type Resolver interface {
	// Resolve resolves sourceURL. saveAsVideo asks for the video track in addition to audio.
	Resolve(ctx context.Context, sourceURL string, saveAsVideo bool) (*domain.ResolvedMedia, error)
}

// ProgressFunc receives the bytes written so far and the expected total (-1 when unknown).
type ProgressFunc func(transferred, total int64)

// DownloadRequest describes one streamed transfer.
type DownloadRequest struct {
	// URL is the media stream URL
	URL string

	// Dest receives the body chunk by chunk. It is created empty by the caller.
	Dest io.Writer

	// IsActive is checked before every chunk read. Returning false stops the
	// transfer with a canceled result.
	IsActive func() bool

	// OnProgress is optional and is called after every written chunk.
	OnProgress ProgressFunc
}

// Downloader performs a single streamed GET without retries.
//
// The result is a tagged union: Success, Canceled, Failure (non-success HTTP status,
// nothing written) or ConnectionError (transport failure). A canceled transfer leaves
// whatever was already written in Dest; cleanup belongs to the caller.
type Downloader interface {
	Download(ctx context.Context, req DownloadRequest) domain.DownloadResult
}

// Transcoder produces the final library file from the downloaded parts.
//
// inputs holds one part per resolved stream, in resolver order. The output must not
// exist before the call. Implementations must stop when ctx is canceled.
type Transcoder interface {
	Transcode(ctx context.Context, inputs []string, output string, format domain.MediaFormat) error
}

// TagWriter writes metadata into a finished file.
//
// A failure here does not revert the file; the orchestrator reports it as a warning.
type TagWriter interface {
	// Write tags path with meta. It returns the catalog facts learned while doing so.
	Write(ctx context.Context, path string, meta domain.MediaMetadata, format domain.MediaFormat) (TagReport, error)
}

// MetadataReader reads back what is embedded in a file already on disk.
type MetadataReader interface {
	Read(ctx context.Context, path string) (TagReport, error)
}

// TagReport is what a TagWriter learned about a file.
type TagReport struct {
	// Tagged is true when metadata was embedded into the file itself
	Tagged bool

	// DetectedType is the container sniffed from the file contents (e.g. "MP3", "MP4")
	DetectedType string

	// Title and Artist are tags already present in the file, if any
	Title  string
	Artist string
}
