// Package codegen extracts project files from assistant output.
//
// Files are fenced blocks whose header line is ```file:<path>. When a
// response has none, the first fenced code block is taken as index.html if
// it looks like an HTML document.
package codegen

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/bunnhack/letsim"
)

// FallbackPath is the path assigned to an untagged HTML code block.
const FallbackPath = "index.html"

var headerRe = regexp.MustCompile("(?i)^```file:(.+)$")

// ParseFileBlocks scans text line by line for file blocks and returns them
// in document order. A new header closes any open block, a line that is
// exactly ``` after trimming closes the open block, and a block still open
// at the end of input is returned with what it accumulated. Content lines
// are kept verbatim.
func ParseFileBlocks(text string) []letsim.FileBlock {
	var (
		blocks  []letsim.FileBlock
		open    bool
		current string
		lines   []string
	)
	emit := func() {
		blocks = append(blocks, letsim.FileBlock{Path: current, Content: strings.Join(lines, "\n")})
		open, current, lines = false, "", nil
	}
	for _, line := range strings.Split(text, "\n") {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			if open {
				emit()
			}
			open, current, lines = true, strings.TrimSpace(m[1]), nil
			continue
		}
		if !open {
			continue
		}
		if strings.TrimSpace(line) == "```" {
			emit()
			continue
		}
		lines = append(lines, line)
	}
	if open {
		emit()
	}
	return blocks
}

// Extract returns the file blocks of text, falling back to a single
// index.html block when text has no file blocks but its first code block is
// an HTML document. The result is empty when neither applies.
func Extract(text string) []letsim.FileBlock {
	if blocks := ParseFileBlocks(text); len(blocks) > 0 {
		return blocks
	}
	if html, ok := ExtractHTML(text); ok {
		return []letsim.FileBlock{{Path: FallbackPath, Content: html}}
	}
	return nil
}

// CleanPath normalizes a block path into a relative, slash-separated project
// path. It rejects empty paths and paths with ".." segments.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	for strings.HasPrefix(p, "/") || strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(strings.TrimPrefix(p, "/"), "./")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%q escapes the project root: %w", p, letsim.ErrInvalidPath)
		}
	}
	p = path.Clean(p)
	if p == "." || p == "" {
		return "", fmt.Errorf("empty path: %w", letsim.ErrInvalidPath)
	}
	return p, nil
}

// Apply writes blocks to store in order, so a later block for the same path
// wins. Blocks with an empty path are skipped. Blocks whose path is rejected
// by CleanPath are skipped and reported in the returned error; a store
// failure stops the write. The cleaned paths written are returned.
func Apply(store letsim.ProjectStore, blocks []letsim.FileBlock) ([]string, error) {
	var (
		applied []string
		invalid []error
	)
	for _, b := range blocks {
		if strings.TrimSpace(b.Path) == "" {
			continue
		}
		p, err := CleanPath(b.Path)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		if err := store.Set(p, b.Content); err != nil {
			return applied, fmt.Errorf("codegen: write %s: %w", p, err)
		}
		applied = append(applied, p)
	}
	if len(invalid) > 0 {
		return applied, fmt.Errorf("codegen: %w", errors.Join(invalid...))
	}
	return applied, nil
}
