// Package main is the production entry point for tunecache.
//
// tunecache pulls remote media streams into a local library, one job at a time:
//   - Daemon mode serves the HTTP/websocket API and notifies on every outcome
//   - One-shot mode caches the URLs given as arguments and exits when idle
//   - -tui shows an interactive dashboard that can enqueue and cancel jobs
//
// Build:
//
//	go build -o build/tunecache ./cmd
//
// Run:
//
//	./build/tunecache                          # daemon
//	./build/tunecache https://host/a.mp3 ...   # one-shot
//	./build/tunecache -tui
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/tejashwikalptaru/tunecache/internal/app"
	"github.com/tejashwikalptaru/tunecache/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		useTUI      bool
		showVersion bool
	)
	flag.BoolVar(&useTUI, "tui", false, "run the interactive dashboard")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-tui] [url ...]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(flag.CommandLine.Output(), "Without urls tunecache serves its HTTP API until interrupted.")
		fmt.Fprintln(flag.CommandLine.Output(), "With urls it caches them and exits once the queue is drained.")
		fmt.Fprintln(flag.CommandLine.Output())
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(app.GetVersionInfo().FullString())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		return 1
	}

	if cfg.App.LoggerConfig().Level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := app.Options{
		Mode: app.ModeDaemon,
		URLs: flag.Args(),
		TUI:  useTUI,
	}
	if len(opts.URLs) > 0 && !useTUI {
		opts.Mode = app.ModeOneShot
	}

	// Log lines would tear the dashboard apart, so they go to a file instead
	if useTUI {
		logFile, err := openLogFile(cfg.Cache.WorkDir)
		if err != nil {
			slog.Error("open log file", slog.Any("error", err))
			return 1
		}
		defer logFile.Close()
		opts.LogOutput = logFile
	}

	application, err := app.NewApplication(cfg, opts)
	if err != nil {
		slog.Error("create application", slog.Any("error", err))
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("application error", slog.Any("error", err))
		code = 1
	}

	if err := application.Shutdown(); err != nil {
		slog.Error("shutdown", slog.Any("error", err))
		code = 1
	}

	return code
}

func openLogFile(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return os.OpenFile(filepath.Join(dir, "tunecache.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
