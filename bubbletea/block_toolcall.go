package bubbletea

import (
	"encoding/json"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*ToolCallBlock)(nil)

// maxOutputLines bounds the command output shown by a collapsed block.
const maxOutputLines = 5

// ToolCallBlock renders a tool call assembled from stream deltas and the
// live output of the command it runs.
type ToolCallBlock struct {
	name      string
	id        string
	args      strings.Builder
	output    strings.Builder
	collapsed bool
	styles    Styles
}

// NewToolCallBlock creates a ToolCallBlock that starts collapsed.
func NewToolCallBlock(name, id string, styles Styles) *ToolCallBlock {
	return &ToolCallBlock{name: name, id: id, collapsed: true, styles: styles}
}

// ID returns the tool call ID for event correlation.
func (b *ToolCallBlock) ID() string { return b.id }

// Name returns the tool name.
func (b *ToolCallBlock) Name() string { return b.name }

// Merge applies a streamed delta. ID and name are only set once; argument
// fragments are appended.
func (b *ToolCallBlock) Merge(id, name, fragment string) {
	if b.id == "" {
		b.id = id
	}
	if b.name == "" {
		b.name = name
	}
	b.args.WriteString(fragment)
}

// AppendOutput adds a chunk of command output.
func (b *ToolCallBlock) AppendOutput(chunk string) {
	b.output.WriteString(chunk)
}

// Collapsible always reports true.
func (b *ToolCallBlock) Collapsible() bool { return true }

func (b *ToolCallBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *ToolCallBlock) View(width int) string {
	indicator := "▶"
	if !b.collapsed {
		indicator = "▼"
	}
	header := b.styles.ToolCall.Render(indicator + " " + b.name)
	if cmd := b.command(); cmd != "" {
		header += " " + b.styles.Muted.Render("$ "+cmd)
	}
	content := header
	if !b.collapsed && b.args.Len() > 0 {
		content += "\n" + b.styles.Muted.Render(b.args.String())
	}
	if out := b.visibleOutput(); out != "" {
		content += "\n" + out
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

// command extracts the command argument once the arguments parse.
func (b *ToolCallBlock) command() string {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(b.args.String()), &args); err != nil {
		return ""
	}
	return args.Command
}

func (b *ToolCallBlock) visibleOutput() string {
	out := strings.TrimRight(b.output.String(), "\n")
	if out == "" || !b.collapsed {
		return out
	}
	lines := strings.Split(out, "\n")
	if len(lines) > maxOutputLines {
		lines = lines[len(lines)-maxOutputLines:]
	}
	return strings.Join(lines, "\n")
}
