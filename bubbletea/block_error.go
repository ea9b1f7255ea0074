package bubbletea

import (
	"fmt"

	"github.com/bunnhack/letsim"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders an error message. Connectivity failures get a second
// line suggesting to start the relay.
type ErrorBlock struct {
	err    error
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(err error, styles Styles) *ErrorBlock {
	return &ErrorBlock{err: err, styles: styles}
}

func (b *ErrorBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	content := wrap.Render(b.styles.Error.Render(fmt.Sprintf("Error: %v", b.err)))
	if hint := letsim.ConnectivityHint(b.err); hint != "" {
		content += "\n" + wrap.Render(b.styles.Muted.Render(hint))
	}
	return content
}
