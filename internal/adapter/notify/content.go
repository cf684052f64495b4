// Package notify renders pipeline status for people: desktop notifications,
// a terminal progress bar and a websocket status stream.
package notify

import (
	"fmt"
	"strconv"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
)

// Notification titles.
const (
	TitleDownloading    = "Downloading"
	TitleConverting     = "Converting"
	TitleCached         = "Cached"
	TitleCanceled       = "Canceled"
	TitleCanceledAll    = "Canceled all"
	TitleConnectionLost = "Connection lost"
	titleErrorCode      = "Error code"
)

// Notification is what a renderer shows for one pipeline state.
type Notification struct {
	Title string
	Body  string

	// Progress is the completed fraction in [0, 1], or -1 when unknown or not applicable
	Progress float64

	// Ongoing marks states that will be replaced by a later notification
	Ongoing bool
}

// ErrorTitle returns the title of a failure notification.
func ErrorTitle(code int) string {
	return titleErrorCode + " " + strconv.Itoa(code)
}

// QueueLine describes how many jobs wait behind the current one.
func QueueLine(n int) string {
	switch n {
	case 0:
		return "Queue is empty"
	case 1:
		return "1 track in queue"
	default:
		return fmt.Sprintf("%d tracks in queue", n)
	}
}

// ForSnapshot maps an in-flight snapshot to its notification.
// Only Downloading and Finalizing have one; terminal states are announced from events.
func ForSnapshot(s domain.CacheSnapshot) (Notification, bool) {
	switch s.Status {
	case domain.StatusDownloading:
		progress := s.Progress.Percentage()
		if progress >= 0 {
			progress /= 100
		}
		return Notification{
			Title:    TitleDownloading,
			Body:     s.Metadata.DisplayTitle() + "\n" + QueueLine(s.QueueLen),
			Progress: progress,
			Ongoing:  true,
		}, true
	case domain.StatusFinalizing:
		return Notification{
			Title:    TitleConverting,
			Body:     s.Metadata.DisplayTitle(),
			Progress: -1,
			Ongoing:  true,
		}, true
	default:
		return Notification{}, false
	}
}

// ForEvent maps a job event to its notification. Every terminal event has exactly one.
func ForEvent(event domain.Event) (Notification, bool) {
	switch e := event.(type) {
	case domain.JobResolvedEvent:
		return Notification{Title: TitleDownloading, Body: e.Metadata.DisplayTitle(), Progress: -1, Ongoing: true}, true
	case domain.JobCompletedEvent:
		title := e.Entry.Title
		if title == "" {
			title = domain.UntitledStream
		}
		return Notification{Title: TitleCached, Body: title, Progress: -1}, true
	case domain.JobCancelledEvent:
		if e.All {
			return Notification{Title: TitleCanceledAll, Body: e.Job.DesiredFilename, Progress: -1}, true
		}
		return Notification{Title: TitleCanceled, Body: e.Job.DesiredFilename, Progress: -1}, true
	case domain.ConnectionLostEvent:
		return Notification{Title: TitleConnectionLost, Body: e.Job.DesiredFilename, Progress: -1}, true
	case domain.JobFailedEvent:
		return Notification{Title: ErrorTitle(e.Code), Body: e.Description, Progress: -1}, true
	default:
		return Notification{}, false
	}
}
