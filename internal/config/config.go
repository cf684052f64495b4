// Package config handles application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
)

// Config holds the application configuration.
type Config struct {
	App       App
	Cache     Cache
	Resolver  Resolver
	HTTP      HTTP
	Transcode Transcode
	Notify    Notify
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"TUNECACHE_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"TUNECACHE_LOG_FORMAT" envDefault:"text"`

	// ID names the preference store holding the catalog, history and settings
	ID string `env:"TUNECACHE_ID" envDefault:"com.tunecache.app"`
}

// Cache holds the pipeline configuration.
type Cache struct {
	OutputDir string `env:"TUNECACHE_OUTPUT_DIR" envDefault:"./data/library"` // finished files
	WorkDir   string `env:"TUNECACHE_WORK_DIR"   envDefault:"./data/work"`    // part files while downloading

	ChunkSize int    `env:"TUNECACHE_CHUNK_SIZE" envDefault:"8192"`
	UserAgent string `env:"TUNECACHE_USER_AGENT" envDefault:"tunecache"`

	// IdleTimeout is how long the loop waits for work before stopping. Zero waits forever.
	IdleTimeout time.Duration `env:"TUNECACHE_IDLE_TIMEOUT" envDefault:"15s"`

	DefaultFormat string `env:"TUNECACHE_DEFAULT_FORMAT" envDefault:"mp3"`
	HistoryLimit  int    `env:"TUNECACHE_HISTORY_LIMIT"  envDefault:"100"`

	// ExitWhenIdle ends the process once the loop stops for lack of work
	ExitWhenIdle bool `env:"TUNECACHE_EXIT_WHEN_IDLE" envDefault:"false"`
}

// Resolver holds the stream resolution configuration.
type Resolver struct {
	// Endpoint is the extraction service base URL. Empty skips the service.
	Endpoint string        `env:"TUNECACHE_RESOLVER_ENDPOINT" envDefault:""`
	Timeout  time.Duration `env:"TUNECACHE_RESOLVER_TIMEOUT"  envDefault:"28s"`
	// YTdlp is the yt-dlp binary used for video pages. Empty, or not on PATH, disables it.
	YTdlp string `env:"TUNECACHE_YTDLP" envDefault:"yt-dlp"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Addr            string        `env:"TUNECACHE_HTTP_ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"TUNECACHE_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"TUNECACHE_HTTP_CORS_ORIGINS"     envDefault:"http://localhost:3000" envSeparator:","`
}

// Transcode holds the finalizing step configuration.
type Transcode struct {
	FFmpeg string `env:"TUNECACHE_FFMPEG" envDefault:"ffmpeg"`
}

// Notify selects the renderers.
type Notify struct {
	Desktop  bool `env:"TUNECACHE_NOTIFY_DESKTOP"  envDefault:"true"`
	Terminal bool `env:"TUNECACHE_NOTIFY_TERMINAL" envDefault:"false"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	return load(env.Options{})
}

// FromMap loads configuration from the given variables instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}

	err := env.ParseWithOptions(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	err = cfg.Cache.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	return cfg, nil
}

// SetAbsPaths converts the cache directories to absolute paths.
func (c *Cache) SetAbsPaths() error {
	var err error
	if c.OutputDir, err = filepath.Abs(c.OutputDir); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	if c.WorkDir, err = filepath.Abs(c.WorkDir); err != nil {
		return fmt.Errorf("work dir: %w", err)
	}

	return nil
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.App.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseFormat(c.App.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.App.ID == "" {
		errs = append(errs, errors.New("app id is required"))
	}

	if c.Cache.OutputDir == "" || c.Cache.WorkDir == "" {
		errs = append(errs, errors.New("output and work directories are required"))
	}
	if c.Cache.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.Cache.ChunkSize))
	}
	if c.Cache.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle timeout must not be negative, got %s", c.Cache.IdleTimeout))
	}
	if !domain.MediaFormat(c.Cache.DefaultFormat).IsValid() {
		errs = append(errs, fmt.Errorf("default format %q: %w", c.Cache.DefaultFormat, domain.ErrUnsupportedFormat))
	}
	if c.Cache.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", c.Cache.HistoryLimit))
	}

	if c.Resolver.Endpoint != "" {
		u, err := url.Parse(c.Resolver.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("resolver endpoint %q is not an http(s) url", c.Resolver.Endpoint))
		}
	}
	if c.Resolver.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("resolver timeout must be positive, got %s", c.Resolver.Timeout))
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http shutdown timeout must be positive, got %s", c.HTTP.ShutdownTimeout))
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the app section into a logger configuration.
// Values are validated by New, so parse errors fall back to the defaults.
func (a App) LoggerConfig() logger.Config {
	level, err := logger.ParseLevel(a.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	format, err := logger.ParseFormat(a.LogFormat)
	if err != nil {
		format = "text"
	}
	return logger.Config{Level: level, Format: format}
}

// DefaultSettings are the user defaults applied before anything is saved.
func (c Cache) DefaultSettings() domain.Settings {
	return domain.Settings{DefaultFormat: domain.MediaFormat(c.DefaultFormat)}
}
