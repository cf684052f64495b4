// Package tui is an interactive terminal dashboard for the cache pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tejashwikalptaru/tunecache/internal/adapter/notify"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

const commandTimeout = 30 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true).Padding(0, 1)
)

type snapshotMsg domain.CacheSnapshot

type streamClosedMsg struct{}

type commandDoneMsg struct {
	kind   domain.CommandKind
	result domain.CommandResult
	err    error
}

// Model is the dashboard state.
type Model struct {
	sender    ports.CommandSender
	snapshots <-chan domain.CacheSnapshot

	snap   domain.CacheSnapshot
	bar    progress.Model
	input  textinput.Model
	adding bool
	width  int

	statusMessage string
	statusErr     bool
}

// NewModel creates a dashboard fed by snapshots that sends commands through sender.
func NewModel(sender ports.CommandSender, snapshots <-chan domain.CacheSnapshot) Model {
	input := textinput.New()
	input.Prompt = "URL> "
	input.Placeholder = "https://..."
	input.CharLimit = 2048
	input.Width = 60

	return Model{
		sender:    sender,
		snapshots: snapshots,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		input:     input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.snapshots)
}

func waitForSnapshot(ch <-chan domain.CacheSnapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

func sendCommand(sender ports.CommandSender, cmd domain.Command) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := sender.Send(ctx, cmd)
		return commandDoneMsg{kind: cmd.Kind(), result: res, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clamp(msg.Width-10, 10, 80)
		m.input.Width = clamp(msg.Width-10, 20, 120)
		return m, nil
	case snapshotMsg:
		m.snap = domain.CacheSnapshot(msg)
		return m, waitForSnapshot(m.snapshots)
	case streamClosedMsg:
		return m, tea.Quit
	case commandDoneMsg:
		m.statusMessage, m.statusErr = describeResult(msg)
		return m, nil
	case tea.KeyMsg:
		if m.adding {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "c":
		m.statusMessage, m.statusErr = "canceling current job...", false
		return m, sendCommand(m.sender, domain.CancelCurrentCommand{})
	case "x":
		m.statusMessage, m.statusErr = "canceling all jobs...", false
		return m, sendCommand(m.sender, domain.CancelAllCommand{})
	case "a":
		m.adding = true
		m.statusMessage = ""
		m.input.SetValue("")
		cmd := m.input.Focus()
		return m, cmd
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.adding = false
		m.input.Blur()
		m.statusMessage, m.statusErr = "add cancelled", false
		return m, nil
	case "enter":
		url := strings.TrimSpace(m.input.Value())
		m.adding = false
		m.input.Blur()
		if url == "" {
			m.statusMessage, m.statusErr = "no url given", true
			return m, nil
		}
		m.statusMessage, m.statusErr = "enqueueing...", false
		return m, sendCommand(m.sender, domain.EnqueueCommand{Request: domain.CacheRequest{SourceURL: url}})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func describeResult(msg commandDoneMsg) (string, bool) {
	if msg.err != nil {
		return "error: " + msg.err.Error(), true
	}
	switch msg.kind {
	case domain.CommandEnqueue:
		if msg.result.Job != nil {
			return "queued " + msg.result.Job.DesiredFilename, false
		}
		return "queued", false
	case domain.CommandCancelCurrent:
		if !msg.result.Canceled {
			return "nothing to cancel", false
		}
		return "canceled current job", false
	case domain.CommandCancelAll:
		if !msg.result.Canceled && msg.result.Removed == 0 {
			return "nothing to cancel", false
		}
		return fmt.Sprintf("canceled all (%d removed from queue)", msg.result.Removed), false
	default:
		return string(msg.kind) + " done", false
	}
}

// View implements tea.Model.
func (m Model) View() string {
	header := titleStyle.Render("tunecache") + "  " + statusStyle.Render(m.snap.Status.String())

	var body []string
	if m.snap.HasJob() {
		body = append(body, m.snap.Metadata.DisplayTitle())
		if pct := m.snap.Progress.Percentage(); pct >= 0 {
			body = append(body, m.bar.ViewAs(pct/100))
		}
		body = append(body, mutedStyle.Render(transferLine(m.snap.Progress)))
	} else {
		body = append(body, mutedStyle.Render("waiting for work"))
	}
	body = append(body, mutedStyle.Render(notify.QueueLine(m.snap.QueueLen)))
	panel := panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...))

	parts := []string{header, panel}
	if m.adding {
		parts = append(parts, m.input.View())
	}
	if m.statusMessage != "" {
		style := okStyle
		if m.statusErr {
			style = errorStyle
		}
		parts = append(parts, style.Render(m.statusMessage))
	}
	hints := "c cancel current  x cancel all  a add url  q quit"
	if m.adding {
		hints = "enter submit  esc back"
	}
	parts = append(parts, mutedStyle.Render(hints))
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func transferLine(p domain.DownloadProgress) string {
	if p.TotalBytes > 0 {
		return fmt.Sprintf("%s / %s", humanBytes(p.BytesTransferred), humanBytes(p.TotalBytes))
	}
	return humanBytes(p.BytesTransferred)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
