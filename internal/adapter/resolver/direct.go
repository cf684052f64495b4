// Package resolver turns source URLs into downloadable streams.
package resolver

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// mediaExtensions are the path suffixes DirectResolver accepts as plain media files.
var mediaExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".mp4":  true,
	".webm": true,
}

// DirectResolver handles URLs that already point at a media file.
// The single stream is the URL itself and the title is the file name.
type DirectResolver struct{}

// NewDirectResolver creates a DirectResolver.
func NewDirectResolver() *DirectResolver {
	return &DirectResolver{}
}

// Supports reports whether sourceURL looks like a direct media link.
func (r *DirectResolver) Supports(sourceURL string) bool {
	u, err := url.Parse(sourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return mediaExtensions[strings.ToLower(path.Ext(u.Path))]
}

// Resolve implements ports.Resolver.
func (r *DirectResolver) Resolve(ctx context.Context, sourceURL string, _ bool) (*domain.ResolvedMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Supports(sourceURL) {
		return nil, domain.NewResolverError(sourceURL, "not a direct media url", domain.ErrStreamNotFound)
	}
	return &domain.ResolvedMedia{
		StreamURLs: []string{sourceURL},
		Metadata: domain.MediaMetadata{
			Title: domain.FilenameFromURL(sourceURL),
		},
	}, nil
}

var _ ports.Resolver = (*DirectResolver)(nil)
