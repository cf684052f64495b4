package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheJob(t *testing.T) {
	job, err := NewCacheJob("id-1", CacheRequest{
		SourceURL:       "https://example.com/watch?v=abc",
		DesiredFilename: "song1",
	}, FormatMP3)
	require.NoError(t, err)

	assert.Equal(t, "id-1", job.ID)
	assert.Equal(t, "song1", job.DesiredFilename)
	assert.Equal(t, FormatMP3, job.Format)
	assert.False(t, job.SaveAsVideo)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestNewCacheJob_SaveAsVideoSelectsMP4(t *testing.T) {
	job, err := NewCacheJob("id", CacheRequest{
		SourceURL:       "https://example.com/v",
		DesiredFilename: "clip",
		SaveAsVideo:     true,
		Format:          FormatWAV,
	}, FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, FormatMP4, job.Format)
}

func TestNewCacheJob_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   CacheRequest
		field string
	}{
		{"empty url", CacheRequest{DesiredFilename: "x"}, "url"},
		{"relative url", CacheRequest{SourceURL: "/just/a/path", DesiredFilename: "x"}, "url"},
		{"name sanitizes to nothing", CacheRequest{SourceURL: "https://h/a.mp3", DesiredFilename: "..."}, "filename"},
		{"unknown format", CacheRequest{SourceURL: "https://h/a.mp3", DesiredFilename: "a", Format: "ogg"}, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCacheJob("id", tt.req, FormatMP3)
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestNewCacheJob_FilenameFromURL(t *testing.T) {
	job, err := NewCacheJob("id", CacheRequest{SourceURL: "https://cdn.example.com/music/track%2001.mp3"}, FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, "track 01", job.DesiredFilename)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b\\c"))
	assert.Equal(t, "what_", SanitizeFilename("what?"))
	assert.Equal(t, "hidden", SanitizeFilename("..hidden"))
	assert.Equal(t, "tab", SanitizeFilename("t\tab"))
	assert.Equal(t, "", SanitizeFilename("  "))
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "abc", FilenameFromURL("https://www.youtube.com/watch?v=abc"))
	assert.Equal(t, "song", FilenameFromURL("https://host/dir/song.mp3"))
	assert.Equal(t, "host", FilenameFromURL("https://host/"))
}

func TestMediaFormat(t *testing.T) {
	assert.Equal(t, ".mp3", FormatMP3.Extension())
	assert.Equal(t, "audio/mpeg", FormatMP3.MimeType())
	assert.Equal(t, "audio/x-wav", FormatWAV.MimeType())
	assert.Equal(t, "audio/aac", FormatAAC.MimeType())
	assert.Equal(t, "video/mp4", FormatMP4.MimeType())
	assert.True(t, FormatMP4.IsVideo())
	assert.False(t, FormatAAC.IsVideo())

	f, err := ParseMediaFormat(".WAV")
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, f)

	_, err = ParseMediaFormat("flac")
	assert.Error(t, err)
}

func TestMediaMetadata_DisplayTitle(t *testing.T) {
	assert.Equal(t, UntitledStream, MediaMetadata{}.DisplayTitle())
	assert.Equal(t, "Song One", MediaMetadata{Title: "Song One"}.DisplayTitle())
	assert.Equal(t, "Band - Song", MediaMetadata{Title: "Song", Author: "Band"}.DisplayTitle())
}

func TestDownloadProgress_Percentage(t *testing.T) {
	assert.Equal(t, -1.0, DownloadProgress{BytesTransferred: 10}.Percentage())
	assert.Equal(t, 50.0, DownloadProgress{BytesTransferred: 5, TotalBytes: 10}.Percentage())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusIdle, StatusDownloading))
	assert.True(t, CanTransition(StatusDownloading, StatusFinalizing))
	assert.True(t, CanTransition(StatusDownloading, StatusCanceledAll))
	assert.True(t, CanTransition(StatusFinalizing, StatusCompleted))
	assert.True(t, CanTransition(StatusCompleted, StatusIdle))
	assert.True(t, CanTransition(StatusConnectionError, StatusIdle))

	assert.False(t, CanTransition(StatusIdle, StatusCompleted))
	assert.False(t, CanTransition(StatusIdle, StatusCanceledCurrent))
	assert.False(t, CanTransition(StatusCompleted, StatusDownloading))
	assert.False(t, CanTransition(StatusFinalizing, StatusConnectionError))

	err := ValidateTransition(StatusIdle, StatusFinalizing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCachingStatus_Text(t *testing.T) {
	text, err := StatusCanceledAll.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "canceled_all", string(text))

	var s CachingStatus
	require.NoError(t, s.UnmarshalText([]byte("finalizing")))
	assert.Equal(t, StatusFinalizing, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestFailureCode(t *testing.T) {
	assert.Equal(t, 404, FailureCode(NewDownloadError("u", 404, "404 Not Found", nil)))
	assert.Equal(t, 0, FailureCode(ErrStreamNotFound))
}

func TestParseCommandKind(t *testing.T) {
	cmd, err := ParseCommandKind("cancel_all")
	require.NoError(t, err)
	assert.Equal(t, CommandCancelAll, cmd.Kind())

	_, err = ParseCommandKind("enqueue")
	assert.Error(t, err)
}
