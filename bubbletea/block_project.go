package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*ProjectBlock)(nil)

// ProjectBlock shows the output of a project run: sync, npm install and the
// dev server. Collapsed, it keeps only the tail of the output.
type ProjectBlock struct {
	output    strings.Builder
	running   bool
	err       error
	collapsed bool
	styles    Styles
}

// NewProjectBlock creates a running ProjectBlock that starts collapsed.
func NewProjectBlock(styles Styles) *ProjectBlock {
	return &ProjectBlock{running: true, collapsed: true, styles: styles}
}

// AppendOutput adds a chunk of output.
func (b *ProjectBlock) AppendOutput(chunk string) {
	b.output.WriteString(chunk)
}

// Finish records that the run step returned.
func (b *ProjectBlock) Finish(err error) {
	b.running = false
	b.err = err
}

// Collapsible always reports true.
func (b *ProjectBlock) Collapsible() bool { return true }

func (b *ProjectBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *ProjectBlock) View(width int) string {
	indicator := "▼"
	if b.collapsed {
		indicator = "▶"
	}
	header := b.styles.ToolCall.Render(indicator + " Run project")
	switch {
	case b.running:
		header += " " + b.styles.Muted.Render("starting…")
	case b.err != nil:
		header += " " + b.styles.Error.Render(fmt.Sprintf("✗ %v", b.err))
	default:
		header += " " + b.styles.Success.Render("✓ dev server started")
	}

	content := header
	if out := strings.TrimRight(b.output.String(), "\n"); out != "" {
		lines := strings.Split(out, "\n")
		if b.collapsed && len(lines) > maxOutputLines {
			lines = lines[len(lines)-maxOutputLines:]
		}
		content += "\n" + b.styles.Muted.Render(strings.Join(lines, "\n"))
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}
