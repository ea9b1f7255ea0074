package exec

import "strings"

// Output limits applied to command output shown to the model.
const (
	DefaultMaxLines = 2000
	DefaultMaxBytes = 50 * 1024
)

// TruncateResult describes the outcome of tail truncation.
type TruncateResult struct {
	Content     string
	Truncated   bool
	TotalLines  int
	TotalBytes  int
	OutputLines int
	OutputBytes int
	// Partial is set when a single line longer than the byte limit was cut.
	Partial bool
}

// TruncateTail keeps the end of s within maxLines lines and maxBytes bytes,
// whichever is hit first. Whole lines are kept, except when the last line
// alone exceeds maxBytes, in which case its tail is returned.
func TruncateTail(s string, maxLines, maxBytes int) TruncateResult {
	if s == "" {
		return TruncateResult{}
	}
	trailingNL := strings.HasSuffix(s, "\n")
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	res := TruncateResult{TotalLines: len(lines), TotalBytes: len(s)}

	if len(lines) <= maxLines && len(s) <= maxBytes {
		res.Content = s
		res.OutputLines, res.OutputBytes = len(lines), len(s)
		return res
	}
	res.Truncated = true

	budget := maxBytes
	if trailingNL {
		budget--
	}
	used, start := 0, len(lines)
	for start > 0 && len(lines)-start < maxLines {
		n := len(lines[start-1])
		if start < len(lines) {
			n++ // separator
		}
		if used+n > budget {
			break
		}
		used += n
		start--
	}

	if start == len(lines) {
		last := lines[len(lines)-1]
		if len(last) > maxBytes {
			last = last[len(last)-maxBytes:]
		}
		res.Content, res.Partial = last, true
		res.OutputLines, res.OutputBytes = 1, len(last)
		return res
	}

	res.Content = strings.Join(lines[start:], "\n")
	if trailingNL {
		res.Content += "\n"
	}
	res.OutputLines, res.OutputBytes = len(lines)-start, len(res.Content)
	return res
}
