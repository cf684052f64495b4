package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/mock"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
)

func TestDirectResolver(t *testing.T) {
	r := NewDirectResolver()

	tests := []struct {
		name      string
		url       string
		supported bool
	}{
		{"mp3", "https://cdn.example.com/music/Track%2001.mp3", true},
		{"uppercase ext", "http://cdn.example.com/a.M4A", true},
		{"query ignored", "https://cdn.example.com/a.ogg?sig=abc", true},
		{"page", "https://video.example.com/watch?v=abc", false},
		{"no scheme", "cdn.example.com/a.mp3", false},
		{"ftp", "ftp://cdn.example.com/a.mp3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.supported, r.Supports(tt.url))
		})
	}

	media, err := r.Resolve(context.Background(), "https://cdn.example.com/music/Track%2001.mp3", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/music/Track%2001.mp3"}, media.StreamURLs)
	assert.Equal(t, "Track 01", media.Metadata.Title)

	_, err = r.Resolve(context.Background(), "https://video.example.com/watch?v=abc", false)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func newResolveServer(t *testing.T, handler http.HandlerFunc) *HTTPResolver {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPResolver(logger.NewTestLogger(t), srv.URL+"/")
}

func TestHTTPResolver_Success(t *testing.T) {
	r := newResolveServer(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/resolve", req.URL.Path)
		assert.Equal(t, "https://video.example.com/watch?v=abc", req.URL.Query().Get("url"))
		assert.Equal(t, "true", req.URL.Query().Get("video"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"streams":     []string{"https://cdn/v", "https://cdn/a"},
			"title":       "Song",
			"author":      "Band",
			"duration_ms": 215000,
			"cover_url":   "https://cdn/cover.jpg",
		})
	})

	media, err := r.Resolve(context.Background(), "https://video.example.com/watch?v=abc", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/v", "https://cdn/a"}, media.StreamURLs)
	assert.Equal(t, domain.MediaMetadata{
		Title:          "Song",
		Author:         "Band",
		DurationMillis: 215000,
		CoverURL:       "https://cdn/cover.jpg",
	}, media.Metadata)
}

func TestHTTPResolver_LiveFlagPassesThrough(t *testing.T) {
	r := newResolveServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"streams":["https://cdn/live"],"is_live":true}`))
	})

	media, err := r.Resolve(context.Background(), "https://video.example.com/live", false)
	require.NoError(t, err)
	assert.True(t, media.Metadata.IsLiveStream)
}

func TestHTTPResolver_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, "", domain.ErrStreamNotFound},
		{"live stream", http.StatusUnprocessableEntity, `{"reason":"live_stream"}`, domain.ErrLiveStreamNotAllowed},
		{"empty streams", http.StatusOK, `{"streams":[]}`, domain.ErrStreamNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolveServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := r.Resolve(context.Background(), "https://video.example.com/x", false)
			assert.ErrorIs(t, err, tt.wantErr)
			var rErr *domain.ResolverError
			assert.ErrorAs(t, err, &rErr)
		})
	}
}

func TestHTTPResolver_OtherFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unprocessable", http.StatusUnprocessableEntity, `{"reason":"geo","message":"blocked"}`},
		{"server error", http.StatusInternalServerError, "boom"},
		{"bad json", http.StatusOK, "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolveServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := r.Resolve(context.Background(), "https://video.example.com/x", false)
			var rErr *domain.ResolverError
			require.ErrorAs(t, err, &rErr)
			assert.NotErrorIs(t, err, domain.ErrLiveStreamNotAllowed)
			assert.NotErrorIs(t, err, domain.ErrResolveTimeout)
		})
	}
}

func TestHTTPResolver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewHTTPResolver(logger.NewTestLogger(t), srv.URL, WithTimeout(50*time.Millisecond))
	_, err := r.Resolve(context.Background(), "https://video.example.com/slow", false)
	assert.ErrorIs(t, err, domain.ErrResolveTimeout)
}

func TestHTTPResolver_CallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newResolveServer(t, func(http.ResponseWriter, *http.Request) {})
	_, err := r.Resolve(ctx, "https://video.example.com/x", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrResolveTimeout)
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("direct first", func(t *testing.T) {
		fallback := mock.NewResolver()
		c := NewChain(NewDirectResolver(), fallback)

		media, err := c.Resolve(ctx, "https://cdn.example.com/a.mp3", false)
		require.NoError(t, err)
		assert.Equal(t, "a", media.Metadata.Title)
		assert.Empty(t, fallback.Calls())
	})

	t.Run("unsupported url falls through", func(t *testing.T) {
		fallback := mock.NewResolver()
		c := NewChain(NewDirectResolver(), fallback)

		_, err := c.Resolve(ctx, "https://video.example.com/watch?v=1", false)
		require.NoError(t, err)
		assert.Len(t, fallback.Calls(), 1)
	})

	t.Run("error moves on", func(t *testing.T) {
		first, second := mock.NewResolver(), mock.NewResolver()
		first.SetFailAll(errors.New("service down"))
		c := NewChain(first, nil, second)

		_, err := c.Resolve(ctx, "https://video.example.com/x", false)
		require.NoError(t, err)
		assert.Len(t, second.Calls(), 1)
	})

	t.Run("live stream stops the chain", func(t *testing.T) {
		first, second := mock.NewResolver(), mock.NewResolver()
		first.SetFailAll(domain.ErrLiveStreamNotAllowed)
		c := NewChain(first, second)

		_, err := c.Resolve(ctx, "https://video.example.com/x", false)
		assert.ErrorIs(t, err, domain.ErrLiveStreamNotAllowed)
		assert.Empty(t, second.Calls())
	})

	t.Run("all fail", func(t *testing.T) {
		first, second := mock.NewResolver(), mock.NewResolver()
		first.SetFailAll(domain.ErrStreamNotFound)
		second.SetFailAll(domain.ErrResolveTimeout)
		c := NewChain(first, second)

		_, err := c.Resolve(ctx, "https://video.example.com/x", false)
		assert.ErrorIs(t, err, domain.ErrStreamNotFound)
		assert.ErrorIs(t, err, domain.ErrResolveTimeout)
	})

	t.Run("nobody accepts", func(t *testing.T) {
		_, err := NewChain(NewDirectResolver()).Resolve(ctx, "https://video.example.com/x", false)
		assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	})
}
