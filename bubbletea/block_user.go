package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*UserMessageBlock)(nil)

// UserMessageBlock shows a submitted prompt. Continuation lines of a
// multi-line prompt are indented under the "> " marker.
type UserMessageBlock struct {
	prompt string
	styles Styles
}

// NewUserMessageBlock creates a UserMessageBlock. Trailing blank lines of
// the prompt are dropped.
func NewUserMessageBlock(prompt string, styles Styles) *UserMessageBlock {
	return &UserMessageBlock{prompt: strings.TrimRight(prompt, " \t\r\n"), styles: styles}
}

func (b *UserMessageBlock) Update(tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *UserMessageBlock) View(width int) string {
	marker := b.styles.UserMsg.Render("> ")
	body := lipgloss.NewStyle().Width(max(width-2, 1)).Render(b.prompt)
	lines := strings.Split(body, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = marker + lines[i]
		} else {
			lines[i] = "  " + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
