package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// Run shows the dashboard until the user quits, ctx ends or snapshots is closed.
func Run(ctx context.Context, sender ports.CommandSender, snapshots <-chan domain.CacheSnapshot) error {
	p := tea.NewProgram(NewModel(sender, snapshots), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
