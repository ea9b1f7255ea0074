package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rivo/uniseg"
)

var _ MessageBlock = (*ToolResultBlock)(nil)

const maxPreviewLen = 60

// ToolResultBlock renders a tool result with a collapsible toggle.
// Success results start collapsed; error results are always expanded.
type ToolResultBlock struct {
	toolName  string
	content   string
	isError   bool
	collapsed bool
	styles    Styles
}

// NewToolResultBlock creates a ToolResultBlock.
func NewToolResultBlock(toolName, content string, isError bool, styles Styles) *ToolResultBlock {
	return &ToolResultBlock{
		toolName:  toolName,
		content:   content,
		isError:   isError,
		collapsed: !isError,
		styles:    styles,
	}
}

// IsError reports whether this tool result represents an error.
func (b *ToolResultBlock) IsError() bool { return b.isError }

// Collapsible reports false for error results.
func (b *ToolResultBlock) Collapsible() bool { return !b.isError }

func (b *ToolResultBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok && !b.isError {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *ToolResultBlock) View(width int) string {
	icon := b.styles.Success.Render("✓")
	if b.isError {
		icon = b.styles.Error.Render("✗")
	}
	indicator := "▼ "
	if b.collapsed {
		indicator = "▶ "
	}
	header := b.styles.ToolCall.Render(indicator+b.toolName) + " " + icon

	content := header
	switch {
	case b.content == "":
	case b.collapsed:
		content += "  " + truncateGraphemes(firstLine(b.content), maxPreviewLen)
	case b.isError:
		content += "\n" + b.styles.Error.Render(b.content)
	default:
		content += "\n" + b.content
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncateGraphemes keeps the first n grapheme clusters of s, marking the cut
// with an ellipsis.
func truncateGraphemes(s string, n int) string {
	if uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	var sb strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < n && g.Next(); i++ {
		sb.WriteString(g.Str())
	}
	return sb.String() + "…"
}
