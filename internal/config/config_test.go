package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/config"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "com.tunecache.app", cfg.App.ID)
	assert.Equal(t, 8192, cfg.Cache.ChunkSize)
	assert.Equal(t, 15*time.Second, cfg.Cache.IdleTimeout)
	assert.Equal(t, 100, cfg.Cache.HistoryLimit)
	assert.Equal(t, 28*time.Second, cfg.Resolver.Timeout)
	assert.Empty(t, cfg.Resolver.Endpoint)
	assert.Equal(t, "yt-dlp", cfg.Resolver.YTdlp)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "ffmpeg", cfg.Transcode.FFmpeg)
	assert.True(t, cfg.Notify.Desktop)
	assert.False(t, cfg.Notify.Terminal)

	assert.True(t, filepath.IsAbs(cfg.Cache.OutputDir))
	assert.True(t, filepath.IsAbs(cfg.Cache.WorkDir))
	assert.Equal(t, "library", filepath.Base(cfg.Cache.OutputDir))
	assert.Equal(t, domain.Settings{DefaultFormat: domain.FormatMP3}, cfg.Cache.DefaultSettings())
}

func TestFromMap_Overrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.FromMap(map[string]string{
		"TUNECACHE_LOG_LEVEL":         "debug",
		"TUNECACHE_LOG_FORMAT":        "json",
		"TUNECACHE_OUTPUT_DIR":        filepath.Join(dir, "out"),
		"TUNECACHE_WORK_DIR":          filepath.Join(dir, "work"),
		"TUNECACHE_IDLE_TIMEOUT":      "0s",
		"TUNECACHE_DEFAULT_FORMAT":    "wav",
		"TUNECACHE_EXIT_WHEN_IDLE":    "true",
		"TUNECACHE_RESOLVER_ENDPOINT": "http://127.0.0.1:9000",
		"TUNECACHE_HTTP_CORS_ORIGINS": "http://a.test,http://b.test",
		"TUNECACHE_NOTIFY_TERMINAL":   "true",
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "out"), cfg.Cache.OutputDir)
	assert.Zero(t, cfg.Cache.IdleTimeout)
	assert.True(t, cfg.Cache.ExitWhenIdle)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Resolver.Endpoint)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.CORSOrigins)
	assert.True(t, cfg.Notify.Terminal)
	assert.Equal(t, domain.FormatWAV, cfg.Cache.DefaultSettings().DefaultFormat)

	lc := cfg.App.LoggerConfig()
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "DEBUG", lc.Level.String())
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "log level", env: map[string]string{"TUNECACHE_LOG_LEVEL": "loud"}},
		{name: "log format", env: map[string]string{"TUNECACHE_LOG_FORMAT": "xml"}},
		{name: "chunk size", env: map[string]string{"TUNECACHE_CHUNK_SIZE": "0"}},
		{name: "idle timeout", env: map[string]string{"TUNECACHE_IDLE_TIMEOUT": "-1s"}},
		{name: "format", env: map[string]string{"TUNECACHE_DEFAULT_FORMAT": "ogg"}},
		{name: "history limit", env: map[string]string{"TUNECACHE_HISTORY_LIMIT": "0"}},
		{name: "endpoint", env: map[string]string{"TUNECACHE_RESOLVER_ENDPOINT": "ftp://x"}},
		{name: "resolver timeout", env: map[string]string{"TUNECACHE_RESOLVER_TIMEOUT": "0s"}},
		{name: "unparsable duration", env: map[string]string{"TUNECACHE_IDLE_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromMap(tt.env)
			assert.Error(t, err)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{})
	require.NoError(t, err)

	cfg.Cache.ChunkSize = -1
	cfg.Cache.DefaultFormat = "flac"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk size")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestNew_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("TUNECACHE_CHUNK_SIZE", "4096")

	cfg, err := config.New()
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Cache.ChunkSize)
}
