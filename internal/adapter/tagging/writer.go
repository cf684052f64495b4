// Package tagging embeds metadata into cached files and sniffs their container type.
//
// MP3 output gets an ID3v1 trailer, which is verified by reading it back with
// github.com/dhowden/tag. Other containers are only identified.
package tagging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const (
	id3v1Size     = 128
	id3v1FieldLen = 30
	// id3v1NoGenre is the "unset" genre byte
	id3v1NoGenre = 0xff
)

// ErrTagMismatch is returned when a written tag does not read back as written.
var ErrTagMismatch = errors.New("tag verification failed")

// Writer implements ports.TagWriter and ports.MetadataReader.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a tag writer.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger.With(slog.String("component", "tagger"))}
}

// Write implements ports.TagWriter.
func (w *Writer) Write(ctx context.Context, path string, meta domain.MediaMetadata, format domain.MediaFormat) (ports.TagReport, error) {
	if err := ctx.Err(); err != nil {
		return ports.TagReport{}, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return ports.TagReport{}, fmt.Errorf("open for tagging: %w", err)
	}
	defer f.Close()

	report := ports.TagReport{DetectedType: string(format)}
	if existing, err := readExisting(f); err == nil {
		report.Title = existing.Title()
		report.Artist = existing.Artist()
	}

	if format != domain.FormatMP3 {
		if detected := identify(f); detected != "" {
			report.DetectedType = detected
		}
		return report, nil
	}

	title, artist := meta.Title, meta.Author
	if title == "" {
		title = report.Title
	}
	if artist == "" {
		artist = report.Artist
	}
	if err := writeID3v1(f, title, artist); err != nil {
		return report, err
	}
	if err := verifyID3v1(f, title, artist); err != nil {
		return report, err
	}

	report.Tagged = true
	if detected := identify(f); detected != "" {
		report.DetectedType = detected
	}
	w.logger.Debug("tagged file",
		slog.String("path", path),
		slog.String("title", title),
		slog.String("type", report.DetectedType))
	return report, nil
}

// Read implements ports.MetadataReader. Files without tags are not an error.
func (w *Writer) Read(ctx context.Context, path string) (ports.TagReport, error) {
	if err := ctx.Err(); err != nil {
		return ports.TagReport{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return ports.TagReport{}, fmt.Errorf("open for reading: %w", err)
	}
	defer f.Close()

	var report ports.TagReport
	if existing, err := readExisting(f); err == nil {
		report.Title = existing.Title()
		report.Artist = existing.Artist()
		report.Tagged = report.Title != "" || report.Artist != ""
	}
	report.DetectedType = identify(f)
	return report, nil
}

func readExisting(f io.ReadSeeker) (tag.Metadata, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return tag.ReadFrom(f)
}

// identify sniffs the container. It returns "" when the content is not recognized.
func identify(f io.ReadSeeker) string {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	format, fileType, err := tag.Identify(f)
	if err != nil {
		return ""
	}
	if fileType != tag.UnknownFileType {
		return string(fileType)
	}
	if format != tag.UnknownFormat {
		return string(format)
	}
	return ""
}

// writeID3v1 appends an ID3v1 trailer, or overwrites the one already there.
func writeID3v1(f *os.File, title, artist string) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	offset := info.Size()
	if offset >= id3v1Size {
		head := make([]byte, 3)
		if _, err := f.ReadAt(head, offset-id3v1Size); err != nil {
			return fmt.Errorf("read trailer: %w", err)
		}
		if string(head) == "TAG" {
			offset -= id3v1Size
		}
	}

	if _, err := f.WriteAt(encodeID3v1(title, artist), offset); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	return nil
}

func encodeID3v1(title, artist string) []byte {
	b := make([]byte, id3v1Size)
	copy(b, "TAG")
	copy(b[3:], latin1(title, id3v1FieldLen))
	copy(b[33:], latin1(artist, id3v1FieldLen))
	// album, year and comment stay zeroed
	b[id3v1Size-1] = id3v1NoGenre
	return b
}

// latin1 encodes s as ISO-8859-1, replacing what it cannot represent, and cuts it to n bytes.
func latin1(s string, n int) []byte {
	out := make([]byte, 0, n)
	for _, r := range s {
		if len(out) == n {
			break
		}
		if r > 0xff {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

func verifyID3v1(f *os.File, title, artist string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	m, err := tag.ReadID3v1Tags(f)
	if err != nil {
		return fmt.Errorf("read back tag: %w", err)
	}
	if !fieldMatches(m.Title(), title) || !fieldMatches(m.Artist(), artist) {
		return fmt.Errorf("%w: got %q by %q", ErrTagMismatch, m.Title(), m.Artist())
	}
	return nil
}

// fieldMatches compares a field read back from an ID3v1 trailer with the string it was
// written from. Readers differ in whether they decode the bytes as Latin-1, so both
// forms are accepted.
func fieldMatches(got, written string) bool {
	b := bytes.TrimRight(latin1(written, id3v1FieldLen), "\x00")
	if got == strings.TrimSpace(string(b)) {
		return true
	}
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		runes = append(runes, rune(c))
	}
	return got == strings.TrimSpace(string(runes))
}

var (
	_ ports.TagWriter      = (*Writer)(nil)
	_ ports.MetadataReader = (*Writer)(nil)
)
