package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/config"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	body := bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x64}, 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	vars := map[string]string{
		"TUNECACHE_LOG_LEVEL":         "error",
		"TUNECACHE_OUTPUT_DIR":        filepath.Join(dir, "library"),
		"TUNECACHE_WORK_DIR":          filepath.Join(dir, "work"),
		"TUNECACHE_IDLE_TIMEOUT":      "50ms",
		"TUNECACHE_FFMPEG":            "tunecache-test-no-such-ffmpeg",
		"TUNECACHE_YTDLP":             "tunecache-test-no-such-ytdlp",
		"TUNECACHE_NOTIFY_DESKTOP":    "false",
		"TUNECACHE_HTTP_ADDR":         "127.0.0.1:0",
		"TUNECACHE_HTTP_CORS_ORIGINS": "*",
	}
	for k, v := range extra {
		vars[k] = v
	}
	cfg, err := config.FromMap(vars)
	require.NoError(t, err)
	return cfg
}

func TestNewApplication_RequiresConfig(t *testing.T) {
	_, err := NewApplication(nil, Options{})
	assert.Error(t, err)
}

func TestOneShot_CachesAndExits(t *testing.T) {
	srv := mediaServer(t)
	cfg := testConfig(t, nil)

	application, err := NewApplication(cfg, Options{
		Mode:      ModeOneShot,
		URLs:      []string{srv.URL + "/first%20song.mp3"},
		Stdout:    io.Discard,
		LogOutput: io.Discard,
		FyneApp:   test.NewApp(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, application.Run(ctx))
	require.NoError(t, ctx.Err(), "run returned because the loop went idle")
	require.NoError(t, application.Shutdown())

	entries, err := application.Catalog().List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(cfg.Cache.OutputDir, "first song.mp3"), entries[0].Path)
	_, err = os.Stat(entries[0].Path)
	assert.NoError(t, err)

	records, err := application.History().Recent(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeCompleted, records[0].Outcome)

	work, err := os.ReadDir(cfg.Cache.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, work, "part files are gone after finalizing")
}

// fakeYTdlp writes a yt-dlp stand-in that points every page at stream.
func fakeYTdlp(t *testing.T, stream string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}
	bin := filepath.Join(t.TempDir(), "yt-dlp")
	script := "#!/bin/sh\necho '{\"_type\":\"video\",\"id\":\"p1\",\"title\":\"Page Song\",\"uploader\":\"Band\",\"duration\":12,\"url\":\"" + stream + "\"}'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestOneShot_CachesVideoPage(t *testing.T) {
	srv := mediaServer(t)
	cfg := testConfig(t, map[string]string{
		"TUNECACHE_YTDLP": fakeYTdlp(t, srv.URL+"/stream"),
	})

	application, err := NewApplication(cfg, Options{
		Mode:      ModeOneShot,
		URLs:      []string{"https://video.example.com/watch?v=p1"},
		Stdout:    io.Discard,
		LogOutput: io.Discard,
		FyneApp:   test.NewApp(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Run(ctx))
	require.NoError(t, application.Shutdown())

	entries, err := application.Catalog().List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Page Song", entries[0].Title)
	assert.Equal(t, "Band", entries[0].Author)
	assert.Equal(t, int64(12000), entries[0].DurationMillis)
}

func TestOneShot_InvalidURL(t *testing.T) {
	cfg := testConfig(t, nil)
	application, err := NewApplication(cfg, Options{
		Mode:      ModeOneShot,
		URLs:      []string{"not a url"},
		Stdout:    io.Discard,
		LogOutput: io.Discard,
		FyneApp:   test.NewApp(),
	})
	require.NoError(t, err)
	defer application.Shutdown()

	err = application.Run(context.Background())
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestDaemon_ServesAPI(t *testing.T) {
	srv := mediaServer(t)
	cfg := testConfig(t, map[string]string{"TUNECACHE_IDLE_TIMEOUT": "0s"})
	require.NoError(t, os.MkdirAll(cfg.Cache.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Cache.OutputDir, "earlier.wav"), []byte("RIFF"), 0o644))

	application, err := NewApplication(cfg, Options{
		Mode:      ModeDaemon,
		Stdout:    io.Discard,
		LogOutput: io.Discard,
		FyneApp:   test.NewApp(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(application.Addr(), ":0")
	}, 2*time.Second, 10*time.Millisecond)
	base := "http://" + application.Addr()

	resp, err := http.Post(base+"/api/jobs", "application/json",
		strings.NewReader(`{"url":"`+srv.URL+`/track.mp3","filename":"track"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/catalog")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Count int `json:"count"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && body.Count == 2
	}, 5*time.Second, 20*time.Millisecond, "the earlier file plus the new job")

	resp, err = http.Post(base+"/api/catalog/rescan", "application/json", nil)
	require.NoError(t, err)
	var report domain.LibraryReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	_ = resp.Body.Close()
	assert.Equal(t, 2, report.Kept)
	assert.Empty(t, report.Added)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(metricsBody), "tunecache_jobs_completed_total 1")

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	require.NoError(t, application.Shutdown())
	require.NoError(t, application.Shutdown(), "second shutdown is a no-op")
}

func TestProcessHost(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	parked := newProcessHost(log, false)
	parked.StartForeground()
	parked.StopSelf()
	select {
	case <-parked.Done():
		t.Fatal("daemon host must not exit on idle")
	default:
	}

	exiting := newProcessHost(log, true)
	exiting.StopSelf()
	exiting.StopSelf()
	select {
	case <-exiting.Done():
	default:
		t.Fatal("exit-when-idle host must close done")
	}
}

func TestVersionInfo(t *testing.T) {
	v := VersionInfo{Version: "1.2.0", GitCommit: "abc", BuildTime: "today"}
	assert.Equal(t, "tunecache 1.2.0 (commit: abc, built: today)", v.FullString())

	v.GitTag = "v1.2.1"
	assert.Contains(t, v.FullString(), "v1.2.1")
}
