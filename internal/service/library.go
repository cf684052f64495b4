package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// LibraryService keeps the catalog in step with the files in the output directory.
// Entries whose file vanished are removed; media files nobody cataloged are added
// with whatever tags they already carry.
type LibraryService struct {
	logger  *slog.Logger
	catalog ports.CatalogRepository
	reader  ports.MetadataReader
	bus     ports.EventBus
	root    string
	newID   func() string

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	closed   bool
}

// NewLibraryService creates a library service rooted at outputDir.
func NewLibraryService(
	logger *slog.Logger,
	catalog ports.CatalogRepository,
	reader ports.MetadataReader,
	bus ports.EventBus,
	outputDir string,
) *LibraryService {
	return &LibraryService{
		logger:  logger.With(slog.String("service", "library")),
		catalog: catalog,
		reader:  reader,
		bus:     bus,
		root:    outputDir,
		newID:   uuid.NewString,
	}
}

// Reconcile walks the output directory once. Only one pass runs at a time.
func (s *LibraryService) Reconcile(ctx context.Context) (domain.LibraryReport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.LibraryReport{}, domain.ErrServiceClosed
	}
	if s.scanning {
		s.mu.Unlock()
		return domain.LibraryReport{}, domain.NewServiceError("LibraryService", "Reconcile", "reconcile already in progress", domain.ErrBusy)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.scanning = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.scanning = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	start := time.Now()
	report, err := s.reconcile(ctx)
	report.Took = time.Since(start)
	if err != nil {
		return report, err
	}

	s.logger.Info("library reconciled",
		slog.Int("added", len(report.Added)),
		slog.Int("removed", len(report.Removed)),
		slog.Int("kept", report.Kept),
		slog.Duration("took", report.Took))
	s.bus.Publish(domain.NewLibraryReconciledEvent(len(report.Added), len(report.Removed), report.Kept))
	return report, nil
}

func (s *LibraryService) reconcile(ctx context.Context) (domain.LibraryReport, error) {
	var report domain.LibraryReport

	entries, err := s.catalog.List()
	if err != nil {
		return report, err
	}

	known := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := os.Stat(entry.Path); errors.Is(err, fs.ErrNotExist) {
			if err := s.catalog.Remove(entry.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return report, err
			}
			report.Removed = append(report.Removed, entry)
			continue
		}
		known[filepath.Clean(entry.Path)] = true
		report.Kept++
	}

	files, err := collectMediaFiles(ctx, s.root)
	if err != nil {
		return report, err
	}

	for _, path := range files {
		if known[path] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entry, err := s.entryFor(ctx, path)
		if err != nil {
			// unreadable files stay out of the catalog until the next pass
			s.logger.Warn("skipping file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		if err := s.catalog.Add(entry); err != nil {
			return report, err
		}
		report.Added = append(report.Added, entry)
	}

	return report, nil
}

func (s *LibraryService) entryFor(ctx context.Context, path string) (domain.CatalogEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	format, _ := mediaFormatOf(path)

	entry := domain.CatalogEntry{
		ID:        s.newID(),
		Path:      path,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Format:    format,
		SizeBytes: info.Size(),
		CachedAt:  info.ModTime(),
	}

	tags, err := s.reader.Read(ctx, path)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	if tags.Title != "" {
		entry.Title = tags.Title
	}
	entry.Author = tags.Artist
	entry.Tagged = tags.Tagged
	entry.DetectedType = tags.DetectedType
	return entry, nil
}

// CancelReconcile stops the running pass, if any.
func (s *LibraryService) CancelReconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return domain.NewServiceError("LibraryService", "CancelReconcile", "no reconcile in progress", nil)
	}
	s.cancel()
	return nil
}

// IsScanning reports whether a pass is running.
func (s *LibraryService) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Shutdown cancels a running pass and refuses new ones.
func (s *LibraryService) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// mediaFormatOf maps a file extension to one of the formats the cache produces.
func mediaFormatOf(path string) (domain.MediaFormat, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	format, err := domain.ParseMediaFormat(ext)
	if err != nil {
		return "", false
	}
	return format, true
}

// collectMediaFiles returns the cacheable media files under root.
// A missing root is an empty library.
func collectMediaFiles(ctx context.Context, root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			// skip what we cannot read
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := mediaFormatOf(path); ok {
			files = append(files, filepath.Clean(path))
		}
		return nil
	})

	return files, err
}
