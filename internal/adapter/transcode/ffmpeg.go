package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// FFmpeg merges and remuxes parts by running the ffmpeg binary.
type FFmpeg struct {
	logger *slog.Logger
	bin    string
}

// NewFFmpeg creates an ffmpeg transcoder for the binary at bin.
func NewFFmpeg(logger *slog.Logger, bin string) *FFmpeg {
	return &FFmpeg{
		logger: logger.With(slog.String("component", "ffmpeg")),
		bin:    bin,
	}
}

// New returns an FFmpeg transcoder when bin can be found on PATH, and a Passthrough otherwise.
func New(logger *slog.Logger, bin string) ports.Transcoder {
	if bin != "" {
		if path, err := exec.LookPath(bin); err == nil {
			logger.Info("using ffmpeg", slog.String("path", path))
			return NewFFmpeg(logger, path)
		}
	}
	logger.Warn("ffmpeg not found, multi-stream jobs will fail", slog.String("binary", bin))
	return NewPassthrough()
}

// Transcode implements ports.Transcoder. A failed run leaves no output behind.
func (f *FFmpeg) Transcode(ctx context.Context, inputs []string, output string, format domain.MediaFormat) error {
	if len(inputs) == 0 {
		return errors.New("transcode: no input parts")
	}
	if err := checkOutputFree(output); err != nil {
		return err
	}

	args := Args(inputs, output, format)
	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	f.logger.Debug("running ffmpeg", slog.String("args", strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		os.Remove(output)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}

	f.logger.Debug("ffmpeg finished",
		slog.String("output", output),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Args builds the ffmpeg command line. Every input is mapped into the output. MP4 and
// AAC copy the streams as they are; MP3 and WAV need an audio encode.
func Args(inputs []string, output string, format domain.MediaFormat) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-n"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	for i := range inputs {
		args = append(args, "-map", strconv.Itoa(i))
	}

	switch format {
	case domain.FormatMP4:
		args = append(args, "-c", "copy")
	case domain.FormatAAC:
		args = append(args, "-vn", "-c:a", "copy")
	case domain.FormatMP3:
		args = append(args, "-vn", "-c:a", "libmp3lame", "-q:a", "2")
	case domain.FormatWAV:
		args = append(args, "-vn", "-c:a", "pcm_s16le")
	default:
		args = append(args, "-c", "copy")
	}
	return append(args, output)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

var _ ports.Transcoder = (*FFmpeg)(nil)
