package notify

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// Terminal draws a byte progress bar for the current job on a plain writer.
// It is fed by the status publisher, which calls Render from a single goroutine.
type Terminal struct {
	out io.Writer

	bar    *progressbar.ProgressBar
	jobID  string
	total  int64
	status domain.CachingStatus
}

// NewTerminal creates a renderer writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// Render implements ports.StatusRenderer.
func (t *Terminal) Render(s domain.CacheSnapshot) {
	defer func() { t.status = s.Status }()

	switch s.Status {
	case domain.StatusDownloading:
		if s.Job.ID != t.jobID || t.bar == nil {
			t.startBar(s)
		}
		if s.Progress.TotalBytes > 0 && s.Progress.TotalBytes != t.total {
			t.total = s.Progress.TotalBytes
			t.bar.ChangeMax64(t.total)
		}
		t.bar.Describe(s.Metadata.DisplayTitle())
		_ = t.bar.Set64(s.Progress.BytesTransferred)

	case domain.StatusFinalizing:
		if t.bar != nil && t.status != domain.StatusFinalizing {
			t.bar.Describe("Converting " + s.Metadata.DisplayTitle())
		}

	case domain.StatusIdle:
		// The terminal snapshot may have been conflated away
		if t.bar != nil {
			_ = t.bar.Exit()
			t.bar = nil
		}

	default:
		t.finish(s)
	}
}

func (t *Terminal) startBar(s domain.CacheSnapshot) {
	if t.bar != nil {
		_ = t.bar.Exit()
	}
	t.jobID = s.Job.ID
	t.total = s.Progress.TotalBytes
	limit := t.total
	if limit <= 0 {
		limit = -1
	}
	t.bar = progressbar.NewOptions64(limit,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(s.Metadata.DisplayTitle()),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (t *Terminal) finish(s domain.CacheSnapshot) {
	if t.bar == nil || s.Job.ID != t.jobID {
		return
	}
	_ = t.bar.Exit()
	t.bar = nil

	line := statusLine(s)
	if line != "" {
		fmt.Fprintln(t.out, line)
	}
}

func statusLine(s domain.CacheSnapshot) string {
	title := s.Metadata.DisplayTitle()
	switch s.Status {
	case domain.StatusCompleted:
		return TitleCached + ": " + title
	case domain.StatusCanceledCurrent:
		return TitleCanceled + ": " + title
	case domain.StatusCanceledAll:
		return TitleCanceledAll + ": " + title
	case domain.StatusConnectionError:
		return TitleConnectionLost + ": " + title
	case domain.StatusFailed:
		return "Failed: " + title
	default:
		return ""
	}
}

var _ ports.StatusRenderer = (*Terminal)(nil)
