// internal/security/scrubber.go
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxDetailLength caps messages returned to clients and stored in history.
	MaxDetailLength = 512
	// MaxToolOutput caps the encoder output attached to errors.
	MaxToolOutput = 1024
)

// Absolute paths leak the server's temp layout into client-visible errors.
var tempPathPattern = regexp.MustCompile(`(/[\w.\-]+)*/zplot-render-[\w\-]+(/[\w.\-]+)*`)

// ScrubDetail prepares an error message for a client or the history table.
// - Replaces control characters (including \r and \n) with spaces
// - Replaces render work directory paths with a placeholder
// - Truncates to MaxDetailLength bytes on a rune boundary
func ScrubDetail(msg string) string {
	result := stripControl(msg, true)
	result = tempPathPattern.ReplaceAllString(result, "[workdir]")
	return truncate(result, MaxDetailLength)
}

// TailOutput returns the last MaxToolOutput bytes of subprocess output with
// carriage-return progress lines collapsed.
func TailOutput(output string) string {
	lines := strings.Split(output, "\n")
	for i, l := range lines {
		// ffmpeg rewrites its progress line with \r; keep only the final state.
		if idx := strings.LastIndexByte(l, '\r'); idx >= 0 {
			l = l[idx+1:]
		}
		lines[i] = stripControl(l, false)
	}
	result := strings.TrimSpace(strings.Join(lines, "\n"))
	if len(result) <= MaxToolOutput {
		return result
	}
	result = result[len(result)-MaxToolOutput:]
	for len(result) > 0 && !utf8.RuneStart(result[0]) {
		result = result[1:]
	}
	return result
}

func stripControl(s string, flatten bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			if flatten || (r != '\t' && r != '\n') {
				b.WriteByte(' ')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
