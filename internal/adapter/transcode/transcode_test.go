package transcode

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
)

func writePart(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPassthrough_MovesSinglePart(t *testing.T) {
	dir := t.TempDir()
	part := writePart(t, dir, "job.0.part", "audio bytes")
	output := filepath.Join(dir, "song.mp3")

	require.NoError(t, NewPassthrough().Transcode(context.Background(), []string{part}, output, domain.FormatMP3))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(got))
	assert.NoFileExists(t, part)
}

func TestPassthrough_RejectsMerge(t *testing.T) {
	dir := t.TempDir()
	parts := []string{writePart(t, dir, "0.part", "v"), writePart(t, dir, "1.part", "a")}

	err := NewPassthrough().Transcode(context.Background(), parts, filepath.Join(dir, "out.mp4"), domain.FormatMP4)
	assert.ErrorIs(t, err, domain.ErrMergeUnsupported)
	assert.FileExists(t, parts[0])
}

func TestPassthrough_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	part := writePart(t, dir, "0.part", "new")
	output := writePart(t, dir, "song.mp3", "old")

	err := NewPassthrough().Transcode(context.Background(), []string{part}, output, domain.FormatMP3)
	assert.ErrorIs(t, err, os.ErrExist)

	got, _ := os.ReadFile(output)
	assert.Equal(t, "old", string(got))
}

func TestPassthrough_EdgeCases(t *testing.T) {
	err := NewPassthrough().Transcode(context.Background(), nil, filepath.Join(t.TempDir(), "x.mp3"), domain.FormatMP3)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	err = NewPassthrough().Transcode(ctx, []string{writePart(t, dir, "0.part", "x")}, filepath.Join(dir, "x.mp3"), domain.FormatMP3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := writePart(t, dir, "src", "payload")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, copyFile(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	assert.NoFileExists(t, src)
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		format domain.MediaFormat
		codec  []string
	}{
		{"mp4 merge", []string{"v.part", "a.part"}, domain.FormatMP4, []string{"-c", "copy"}},
		{"aac", []string{"a.part"}, domain.FormatAAC, []string{"-vn", "-c:a", "copy"}},
		{"mp3", []string{"a.part"}, domain.FormatMP3, []string{"-vn", "-c:a", "libmp3lame", "-q:a", "2"}},
		{"wav", []string{"a.part"}, domain.FormatWAV, []string{"-vn", "-c:a", "pcm_s16le"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := Args(tt.inputs, "out", tt.format)

			assert.Equal(t, "out", args[len(args)-1])
			assert.Contains(t, args, "-n", "never overwrite")
			for _, in := range tt.inputs {
				assert.Contains(t, args, in)
			}
			tail := args[len(args)-1-len(tt.codec) : len(args)-1]
			assert.Equal(t, tt.codec, tail)
		})
	}

	args := Args([]string{"v", "a"}, "out", domain.FormatMP4)
	assert.Equal(t, []string{"-i", "v", "-i", "a", "-map", "0", "-map", "1"}, args[5:13])
}

func TestNew_FallsBackToPassthrough(t *testing.T) {
	tr := New(logger.NewTestLogger(t), "definitely-not-ffmpeg-binary")
	assert.IsType(t, &Passthrough{}, tr)

	tr = New(logger.NewTestLogger(t), "")
	assert.IsType(t, &Passthrough{}, tr)
}

func TestFFmpeg_FailureRemovesOutput(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("no false binary on PATH")
	}
	dir := t.TempDir()
	part := writePart(t, dir, "0.part", "x")
	output := filepath.Join(dir, "out.mp3")

	err = NewFFmpeg(logger.NewTestLogger(t), bin).Transcode(context.Background(), []string{part}, output, domain.FormatMP3)
	assert.Error(t, err)
	assert.NoFileExists(t, output)
}

func TestFFmpeg_RemuxesWhenAvailable(t *testing.T) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	dir := t.TempDir()
	output := filepath.Join(dir, "out.mp4")

	err = NewFFmpeg(logger.NewTestLogger(t), bin).Transcode(context.Background(),
		[]string{writePart(t, dir, "0.part", "not media")}, output, domain.FormatMP4)
	assert.Error(t, err, "garbage input is rejected")
	assert.NoFileExists(t, output)
}
