// Package transcode turns downloaded stream parts into the final library file.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// Passthrough moves a single downloaded part into place unchanged.
// It cannot merge, so more than one part fails with domain.ErrMergeUnsupported.
type Passthrough struct{}

// NewPassthrough creates a Passthrough transcoder.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

// Transcode implements ports.Transcoder.
func (p *Passthrough) Transcode(ctx context.Context, inputs []string, output string, _ domain.MediaFormat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch len(inputs) {
	case 0:
		return errors.New("transcode: no input parts")
	case 1:
	default:
		return fmt.Errorf("transcode %d parts: %w", len(inputs), domain.ErrMergeUnsupported)
	}
	if err := checkOutputFree(output); err != nil {
		return err
	}

	if err := os.Rename(inputs[0], output); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to a copy
	return copyFile(inputs[0], output)
}

func checkOutputFree(output string) error {
	_, err := os.Stat(output)
	switch {
	case err == nil:
		return fmt.Errorf("transcode: %s: %w", output, os.ErrExist)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("transcode: stat output: %w", err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open part: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy part: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close output: %w", err)
	}
	return os.Remove(src)
}

var _ ports.Transcoder = (*Passthrough)(nil)
