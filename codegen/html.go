package codegen

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// inlineFence matches the first backtick fence anywhere in the text,
// including one-line and indented fences that markdown does not treat as
// fenced code.
var inlineFence = regexp.MustCompile("(?is)```(?:html)?\\s*(.*?)```")

// ExtractHTML returns the trimmed content of the first closed backtick code
// block in markdown when it contains a <!doctype or <html marker
// (case-insensitive). Tilde fences are not code blocks here.
func ExtractHTML(markdown string) (string, bool) {
	source := []byte(markdown)
	if code, ok := firstFencedBlock(source); ok && isHTML(code) {
		return code, true
	}
	m := inlineFence.FindStringSubmatch(markdown)
	if m == nil {
		return "", false
	}
	if code := strings.TrimSpace(m[1]); isHTML(code) {
		return code, true
	}
	return "", false
}

// firstFencedBlock returns the trimmed content of the first closed
// backtick-fenced block goldmark finds.
func firstFencedBlock(source []byte) (string, bool) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var first *ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fb, ok := n.(*ast.FencedCodeBlock); ok && backtickFence(fb, source) {
			first = fb
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if first == nil || !fenceClosed(first, source) {
		return "", false
	}

	var buf bytes.Buffer
	lines := first.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimSpace(buf.String()), true
}

func isHTML(code string) bool {
	lower := strings.ToLower(code)
	return strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html")
}

// backtickFence reports whether the block opens with ``` rather than ~~~.
func backtickFence(n *ast.FencedCodeBlock, source []byte) bool {
	var end int
	switch {
	case n.Info != nil:
		end = n.Info.Segment.Start
	case n.Lines().Len() > 0:
		end = n.Lines().At(0).Start - 1
	default:
		return false
	}
	if end < 0 {
		return false
	}
	start := bytes.LastIndexByte(source[:end], '\n') + 1
	return bytes.HasPrefix(bytes.TrimSpace(source[start:end]), []byte("```"))
}

// fenceClosed reports whether the line right after the block's last content
// line is a fence. goldmark runs an unclosed block to the end of its
// container, so nothing follows it.
func fenceClosed(n *ast.FencedCodeBlock, source []byte) bool {
	lines := n.Lines()
	if lines.Len() == 0 {
		return false
	}
	rest := source[lines.At(lines.Len()-1).Stop:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return bytes.HasPrefix(bytes.TrimSpace(rest), []byte("```"))
}
