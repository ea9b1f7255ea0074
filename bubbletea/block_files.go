package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*FilesAppliedBlock)(nil)

// FilesAppliedBlock reports the project files written from one response.
type FilesAppliedBlock struct {
	paths  []string
	styles Styles
}

// NewFilesAppliedBlock creates a FilesAppliedBlock.
func NewFilesAppliedBlock(paths []string, styles Styles) *FilesAppliedBlock {
	return &FilesAppliedBlock{paths: append([]string(nil), paths...), styles: styles}
}

// Paths returns the applied paths.
func (b *FilesAppliedBlock) Paths() []string { return b.paths }

func (b *FilesAppliedBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *FilesAppliedBlock) View(width int) string {
	unit := "files"
	if len(b.paths) == 1 {
		unit = "file"
	}
	header := b.styles.Success.Render(fmt.Sprintf("✓ Updated %d %s", len(b.paths), unit))
	return lipgloss.NewStyle().Width(width).Render(header + " " + b.styles.Muted.Render(strings.Join(b.paths, ", ")))
}
