package bubbletea

import (
	"strings"

	"github.com/bunnhack/letsim"
	"github.com/bunnhack/letsim/markdown"
	tea "github.com/charmbracelet/bubbletea"
)

var _ MessageBlock = (*AssistantTextBlock)(nil)

// AssistantTextBlock renders streamed assistant text with markdown
// formatting. File blocks start collapsed to a one-line header; Tab expands
// them. Finalized paragraphs (separated by a blank line) are rendered once
// per width and cached; only the trailing text is re-rendered on each delta.
type AssistantTextBlock struct {
	content   strings.Builder
	theme     letsim.Theme
	collapsed bool

	// finalizedRaw is the stable prefix ending at the last blank line
	// outside a fence.
	finalizedRaw     string
	finalizedByWidth map[int]string
}

// NewAssistantTextBlock creates a new block for streaming assistant text.
func NewAssistantTextBlock(theme letsim.Theme) *AssistantTextBlock {
	return &AssistantTextBlock{
		theme:            theme,
		collapsed:        true,
		finalizedByWidth: make(map[int]string),
	}
}

// Append adds a text delta from the model stream.
func (b *AssistantTextBlock) Append(text string) {
	b.content.WriteString(text)
	b.promoteFinalized()
}

// Text returns the raw accumulated text.
func (b *AssistantTextBlock) Text() string { return b.content.String() }

// Collapsible reports whether the text contains a file block.
func (b *AssistantTextBlock) Collapsible() bool {
	return strings.Contains(strings.ToLower(b.content.String()), "```file:")
}

func (b *AssistantTextBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok && b.Collapsible() {
		b.collapsed = !b.collapsed
		clear(b.finalizedByWidth)
	}
	return b, nil
}

func (b *AssistantTextBlock) View(width int) string {
	finalized := b.renderFinalized(width)
	trailing := b.trailingRaw()
	if hasUnclosedFence(trailing) {
		// Close the fence only for rendering so partial streams display safely.
		trailing += "\n```"
	}
	if trailing == "" {
		return finalized
	}
	rendered := b.render(trailing, width)
	if strings.TrimSpace(rendered) == "" {
		return finalized
	}
	if finalized == "" {
		return rendered
	}
	return strings.TrimRight(finalized, "\n") + "\n\n" + strings.TrimLeft(rendered, "\n")
}

func (b *AssistantTextBlock) render(src string, width int) string {
	if b.collapsed {
		return markdown.Render(src, width, b.theme, markdown.WithCollapsedFiles())
	}
	return markdown.Render(src, width, b.theme)
}

// promoteFinalized finds the last blank line that does not fall inside an
// unclosed fenced block and moves everything before it into the cache.
func (b *AssistantTextBlock) promoteFinalized() {
	raw := b.content.String()
	for end := len(raw); ; {
		idx := strings.LastIndex(raw[:end], "\n\n")
		if idx <= 0 {
			return
		}
		candidate := raw[:idx]
		if !hasUnclosedFence(candidate) {
			if candidate != b.finalizedRaw {
				b.finalizedRaw = candidate
				clear(b.finalizedByWidth)
			}
			return
		}
		end = idx
	}
}

func (b *AssistantTextBlock) renderFinalized(width int) string {
	if width <= 0 || b.finalizedRaw == "" {
		return ""
	}
	if cached, ok := b.finalizedByWidth[width]; ok {
		return cached
	}
	rendered := b.render(b.finalizedRaw, width)
	b.finalizedByWidth[width] = rendered
	return rendered
}

func (b *AssistantTextBlock) trailingRaw() string {
	raw := b.content.String()
	if b.finalizedRaw == "" {
		return raw
	}
	return strings.TrimPrefix(raw, b.finalizedRaw+"\n\n")
}

// hasUnclosedFence reports an odd number of "```" occurrences. Triple
// backticks inside inline code spans are miscounted.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}
