package bubbletea

import (
	"fmt"
	"strings"

	"github.com/bunnhack/letsim"
	"github.com/mattn/go-runewidth"
)

// ExplorerWidth is the column width of the file explorer panel.
const ExplorerWidth = 24

// minChatWidth is the narrowest chat pane that still gets an explorer next
// to it.
const minChatWidth = 40

// Explorer lists the paths of the project store. Paths written by the last
// response are highlighted.
type Explorer struct {
	store  letsim.ProjectStore
	recent  map[string]bool
	styles  Styles
}

// NewExplorer creates an Explorer over store. A nil store renders a
// placeholder.
func NewExplorer(store letsim.ProjectStore, styles Styles) *Explorer {
	return &Explorer{store: store, recent: make(map[string]bool), styles: styles}
}

// MarkApplied replaces the highlighted set with paths.
func (e *Explorer) MarkApplied(paths []string) {
	clear(e.recent)
	for _, p := range paths {
		e.recent[p] = true
	}
}

// View renders exactly height lines, each width columns wide.
func (e *Explorer) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	lines := make([]string, 0, height)
	lines = append(lines, e.styles.Accent.Render(cell("Files", width)))

	var paths []string
	if e.store != nil {
		paths = e.store.Paths()
	}
	if len(paths) == 0 {
		lines = append(lines, e.styles.Muted.Render(cell("(empty)", width)))
	}

	rows := height - 1
	for i, p := range paths {
		if len(lines) == height {
			break
		}
		if i == rows-1 && len(paths) > rows {
			more := fmt.Sprintf("… %d more", len(paths)-i)
			lines = append(lines, e.styles.Muted.Render(cell(more, width)))
			break
		}
		if e.recent[p] {
			lines = append(lines, e.styles.Success.Render(cell("● "+p, width)))
		} else {
			lines = append(lines, cell("  "+p, width))
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines[:height], "\n")
}

// cell truncates s to width columns and pads it with spaces.
func cell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}
