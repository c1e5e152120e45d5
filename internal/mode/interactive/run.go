// ABOUTME: Entry point for the interactive chat view
// ABOUTME: Creates the tea.Program, bridges stream events into it, and blocks until exit

package interactive

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive view. Blocks until the user exits; streams
// still running at exit are cancelled.
func Run(ctx context.Context, deps Deps) error {
	m := NewAppModel(ctx, deps)

	p := tea.NewProgram(
		m,
		tea.WithContext(ctx),
		tea.WithOutput(os.Stderr),
	)

	stop := Forward(p, deps.Manager.Dispatcher())
	defer stop()
	defer deps.Manager.Close()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("bubble tea: %w", err)
	}
	return nil
}
