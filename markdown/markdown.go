// Package markdown renders assistant markdown to ANSI-styled terminal output
// using goldmark for parsing and lipgloss for styling. Fenced blocks whose
// info string is file:<path> get a path header so generated files stand out
// in the chat.
package markdown

import (
	"strings"

	"github.com/bunnhack/letsim"
)

// Option configures a Render call.
type Option func(*renderer)

// WithCollapsedFiles renders file blocks as a single header line with the
// path and line count instead of the full contents.
func WithCollapsedFiles() Option {
	return func(r *renderer) {
		r.collapseFiles = true
	}
}

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width; code is rendered
// without reflow. A width of zero or less means 80 columns.
func Render(source string, width int, theme letsim.Theme, opts ...Option) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	for _, opt := range opts {
		opt(r)
	}
	return r.render([]byte(source), width)
}

// FilePath returns the path of a file:<path> info string, or "".
func FilePath(info string) string {
	info = strings.TrimSpace(info)
	if len(info) < 5 || !strings.EqualFold(info[:5], "file:") {
		return ""
	}
	return strings.TrimSpace(info[5:])
}
