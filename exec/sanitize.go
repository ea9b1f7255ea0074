package exec

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Sanitize makes terminal output safe to show in the chat and to send to the
// model. ANSI escape sequences are stripped, CRLF becomes LF, control
// characters other than tab and newline are dropped, and a lone carriage
// return overwrites its line from the start the way a terminal would.
func Sanitize(s string) string {
	s = strings.ReplaceAll(ansi.Strip(s), "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	if !strings.Contains(s, "\r") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = overwriteCR(line)
	}
	return strings.Join(lines, "\n")
}

// overwriteCR replays the segments of a line separated by \r onto one
// buffer; text left over from a longer earlier segment stays visible.
func overwriteCR(line string) string {
	if !strings.Contains(line, "\r") {
		return line
	}
	var screen []rune
	for _, seg := range strings.Split(line, "\r") {
		for i, r := range []rune(seg) {
			if i < len(screen) {
				screen[i] = r
			} else {
				screen = append(screen, r)
			}
		}
	}
	return string(screen)
}
