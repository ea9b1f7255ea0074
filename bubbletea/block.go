package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// MessageBlock is a renderable element in the conversation.
// Unlike tea.Model, View takes a width parameter so the root model
// controls layout and blocks are testable in isolation.
type MessageBlock interface {
	Update(tea.Msg) (MessageBlock, tea.Cmd)
	View(width int) string
}

// Collapsible is implemented by blocks that can respond to ToggleMsg.
// Collapsible reports whether toggling currently changes anything.
type Collapsible interface {
	Collapsible() bool
}

// ToggleMsg tells a collapsible block to toggle its collapsed state.
// Sent by the root model when the user presses Tab on a focused block.
type ToggleMsg struct{}

func isCollapsible(b MessageBlock) bool {
	c, ok := b.(Collapsible)
	return ok && c.Collapsible()
}
