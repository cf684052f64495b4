package resolver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const (
	// audioFormat picks one audio-only stream, or the best muxed one when a site has none.
	audioFormat = "bestaudio/best"
	// videoFormat asks for separate tracks that are merged while finalizing.
	videoFormat = "bestvideo+bestaudio/best"

	maxDumpLine = 16 << 20
)

// dumpFormat is one entry of requested_formats.
type dumpFormat struct {
	URL string `json:"url"`
}

// dumpJSON holds the fields of a yt-dlp info dump that GetExtractedInfo does not cover.
type dumpJSON struct {
	URL              string       `json:"url"`
	RequestedFormats []dumpFormat `json:"requested_formats"`
	Uploader         string       `json:"uploader"`
	Channel          string       `json:"channel"`
	IsLive           bool         `json:"is_live"`
	LiveStatus       string       `json:"live_status"`
}

// YTdlpResolver extracts streams from video-sharing pages by running yt-dlp
// with --dump-json. Nothing is downloaded by yt-dlp itself.
type YTdlpResolver struct {
	logger     *slog.Logger
	executable string
	timeout    time.Duration
}

// YTdlpOption configures a YTdlpResolver.
type YTdlpOption func(*YTdlpResolver)

// WithYTdlpTimeout sets the per-call timeout. Values <= 0 keep DefaultTimeout.
func WithYTdlpTimeout(d time.Duration) YTdlpOption {
	return func(r *YTdlpResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewYTdlpResolver creates a resolver running the yt-dlp binary at executable.
func NewYTdlpResolver(logger *slog.Logger, executable string, opts ...YTdlpOption) *YTdlpResolver {
	r := &YTdlpResolver{
		logger:     logger.With(slog.String("component", "resolver"), slog.String("resolver", "ytdlp")),
		executable: executable,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LookupYTdlp returns a resolver when bin can be found on PATH, and nil otherwise.
// NewChain ignores the nil.
func LookupYTdlp(logger *slog.Logger, bin string, opts ...YTdlpOption) ports.Resolver {
	if bin == "" {
		return nil
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		logger.Info("yt-dlp not found, page urls need a resolver endpoint", slog.String("bin", bin))
		return nil
	}
	return NewYTdlpResolver(logger, path, opts...)
}

// Supports accepts any http(s) url; yt-dlp decides whether it knows the site.
func (r *YTdlpResolver) Supports(sourceURL string) bool {
	u, err := url.Parse(sourceURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve implements ports.Resolver.
func (r *YTdlpResolver) Resolve(ctx context.Context, sourceURL string, saveAsVideo bool) (*domain.ResolvedMedia, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	format := audioFormat
	if saveAsVideo {
		format = videoFormat
	}

	command := ytdlp.New().
		SetExecutable(r.executable).
		NoPlaylist().
		DumpJSON().
		Format(format)

	start := time.Now()
	res, err := command.Run(ctx, sourceURL)
	if err != nil {
		return nil, r.runError(ctx, sourceURL, res, err)
	}
	r.logger.Debug("yt-dlp answered", slog.String("url", sourceURL), slog.Duration("took", time.Since(start)))

	info, err := res.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		return nil, domain.NewResolverError(sourceURL, "yt-dlp returned no info", domain.ErrStreamNotFound)
	}
	dump, err := parseDump(res.Stdout)
	if err != nil {
		return nil, domain.NewResolverError(sourceURL, "decode yt-dlp dump", err)
	}

	if dump.IsLive || dump.LiveStatus == "is_live" || dump.LiveStatus == "is_upcoming" {
		return nil, domain.NewResolverError(sourceURL, "source is a live stream", domain.ErrLiveStreamNotAllowed)
	}

	streams := dump.streams()
	if len(streams) == 0 {
		return nil, domain.NewResolverError(sourceURL, "yt-dlp found no stream url", domain.ErrStreamNotFound)
	}

	first := info[0]
	meta := domain.MediaMetadata{
		Author: dump.Uploader,
	}
	if first.Title != nil {
		meta.Title = *first.Title
	}
	if first.Duration != nil {
		meta.DurationMillis = int64(math.Round(*first.Duration * 1000))
	}
	if first.Thumbnail != nil {
		meta.CoverURL = *first.Thumbnail
	}
	if meta.Author == "" {
		meta.Author = dump.Channel
	}

	return &domain.ResolvedMedia{StreamURLs: streams, Metadata: meta}, nil
}

func (r *YTdlpResolver) runError(ctx context.Context, sourceURL string, res *ytdlp.Result, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewResolverError(sourceURL, fmt.Sprintf("yt-dlp gave no answer within %s", r.timeout), domain.ErrResolveTimeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var stderr string
	if res != nil {
		stderr = res.Stderr
	}
	r.logger.Debug("yt-dlp failed", slog.String("url", sourceURL), slog.String("stderr", stderr), slog.Any("error", err))

	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "live event") || strings.Contains(lower, "is live") {
		return domain.NewResolverError(sourceURL, "source is a live stream", domain.ErrLiveStreamNotAllowed)
	}
	return domain.NewResolverError(sourceURL, "yt-dlp: "+lastLine(stderr), domain.ErrStreamNotFound)
}

// streams returns the merged track urls when yt-dlp picked several formats,
// and the single format url otherwise.
func (d dumpJSON) streams() []string {
	var out []string
	for _, f := range d.RequestedFormats {
		if f.URL != "" {
			out = append(out, f.URL)
		}
	}
	if len(out) == 0 && d.URL != "" {
		out = append(out, d.URL)
	}
	return out
}

// parseDump decodes the first JSON object printed by yt-dlp.
func parseDump(stdout string) (dumpJSON, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 4096), maxDumpLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var d dumpJSON
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			return dumpJSON{}, err
		}
		return d, nil
	}
	if err := scanner.Err(); err != nil {
		return dumpJSON{}, err
	}
	return dumpJSON{}, errors.New("no json in output")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

var _ ports.Resolver = (*YTdlpResolver)(nil)
