package tui

import (
	"context"
	"fmt"

	"nftmint/pkg/app"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal UI until the user quits.
func Start(ctx context.Context, a *app.App, version string) error {
	Version = version
	m := initialModel(ctx, a)
	defer a.Hub().Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
