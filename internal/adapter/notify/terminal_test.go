package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

func snapshot(status domain.CachingStatus, id string, done, total int64) domain.CacheSnapshot {
	return domain.CacheSnapshot{
		Status:   status,
		Job:      domain.CacheJob{ID: id, DesiredFilename: id},
		Metadata: domain.MediaMetadata{Title: "Song " + id},
		Progress: domain.DownloadProgress{BytesTransferred: done, TotalBytes: total},
	}
}

func TestTerminal_DrawsAndFinishes(t *testing.T) {
	var out bytes.Buffer
	r := NewTerminal(&out)

	r.Render(snapshot(domain.StatusDownloading, "a", 0, 1000))
	r.Render(snapshot(domain.StatusDownloading, "a", 500, 1000))
	r.Render(snapshot(domain.StatusFinalizing, "a", 1000, 1000))
	r.Render(snapshot(domain.StatusCompleted, "a", 1000, 1000))
	r.Render(domain.CacheSnapshot{})

	assert.Contains(t, out.String(), "Song a")
	assert.Contains(t, out.String(), "Cached: Song a")
	assert.Nil(t, r.bar)
}

func TestTerminal_TerminalStates(t *testing.T) {
	tests := []struct {
		status domain.CachingStatus
		line   string
	}{
		{domain.StatusCanceledCurrent, "Canceled: Song a"},
		{domain.StatusCanceledAll, "Canceled all: Song a"},
		{domain.StatusConnectionError, "Connection lost: Song a"},
		{domain.StatusFailed, "Failed: Song a"},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			var out bytes.Buffer
			r := NewTerminal(&out)
			r.Render(snapshot(domain.StatusDownloading, "a", 10, 100))
			r.Render(snapshot(tt.status, "a", 10, 100))
			assert.Contains(t, out.String(), tt.line)
		})
	}
}

func TestTerminal_NewJobReplacesBar(t *testing.T) {
	var out bytes.Buffer
	r := NewTerminal(&out)

	r.Render(snapshot(domain.StatusDownloading, "a", 10, 100))
	// The terminal snapshot of a was conflated away
	r.Render(snapshot(domain.StatusDownloading, "b", 0, 200))

	assert.Equal(t, "b", r.jobID)
	assert.Equal(t, int64(200), r.total)
	assert.NotContains(t, out.String(), "Cached")
}

func TestTerminal_IgnoresStaleTerminalSnapshot(t *testing.T) {
	var out bytes.Buffer
	r := NewTerminal(&out)

	r.Render(snapshot(domain.StatusCompleted, "x", 0, 0))
	assert.Empty(t, out.String())
}
