// Package bubbletea provides the Bubble Tea TUI for letsim: a chat pane, a
// file explorer for the project store and a status line.
package bubbletea

import (
	"context"

	"github.com/bunnhack/letsim"
	tea "github.com/charmbracelet/bubbletea"
)

// AgentFunc runs the agent loop. The onEvent callback is called for each
// streaming event. The function blocks until the agent completes or the
// context is cancelled.
type AgentFunc func(ctx context.Context, session *letsim.Session, onEvent func(letsim.Event)) error

// ProjectFunc syncs, installs and starts the project. Output of every step,
// including the dev server after ProjectFunc returns, goes to onOutput.
type ProjectFunc func(ctx context.Context, onOutput func(chunk string)) error

// PreviewFunc builds the preview and returns where it can be opened.
type PreviewFunc func() (string, error)

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. The context is used for graceful shutdown; when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamEventMsg wraps a streaming event for delivery to the Bubble Tea model.
type StreamEventMsg struct {
	Event letsim.Event
}

// AgentDoneMsg signals that the agent loop has completed.
type AgentDoneMsg struct {
	Err error
}

// ProjectOutputMsg carries a chunk of project command output.
type ProjectOutputMsg struct {
	Chunk string
}

// ProjectDoneMsg signals that ProjectFunc returned.
type ProjectDoneMsg struct {
	Err error
}

// PreviewDoneMsg carries the result of a PreviewFunc call.
type PreviewDoneMsg struct {
	Location string
	Err      error
}
