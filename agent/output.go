package agent

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/fwojciec/hangar"
)

const (
	// DefaultMaxResultLines bounds the lines of one tool result given to the model.
	DefaultMaxResultLines = 2000
	// DefaultMaxResultBytes bounds the bytes of one tool result given to the model.
	DefaultMaxResultBytes = 50 * 1024
)

// Sanitize strips ANSI escape codes and control characters from tool output.
// Tabs and newlines are kept, CRLF becomes LF, and a lone CR overwrites the
// line from its start as a terminal would.
func Sanitize(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' || r > 0x1F {
			b.WriteRune(r)
		}
	}
	s = b.String()

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.ContainsRune(line, '\r') {
			lines[i] = resolveCarriageReturns(line)
		}
	}
	return strings.Join(lines, "\n")
}

func resolveCarriageReturns(line string) string {
	segments := strings.Split(line, "\r")
	buf := []rune(segments[0])
	for _, seg := range segments[1:] {
		for j, r := range []rune(seg) {
			if j < len(buf) {
				buf[j] = r
			} else {
				buf = append(buf, r)
			}
		}
	}
	return string(buf)
}

// TruncateResult describes the outcome of head truncation.
type TruncateResult struct {
	Content     string
	Truncated   bool
	TotalLines  int
	TotalBytes  int
	OutputLines int
}

// TruncateHead keeps the first maxLines lines or maxBytes bytes of s,
// whichever limit is hit first. Query results lead with their most relevant
// rows, so the head is what survives. A single first line longer than
// maxBytes is cut on a rune boundary.
func TruncateHead(s string, maxLines, maxBytes int) TruncateResult {
	if s == "" {
		return TruncateResult{}
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	res := TruncateResult{TotalLines: len(lines), TotalBytes: len(s)}
	if len(lines) <= maxLines && len(s) <= maxBytes {
		res.Content = s
		res.OutputLines = len(lines)
		return res
	}

	res.Truncated = true
	var b strings.Builder
	for i, line := range lines {
		if i >= maxLines {
			break
		}
		need := len(line)
		if i > 0 {
			need++
		}
		if b.Len()+need > maxBytes {
			if i == 0 {
				b.WriteString(cutRunes(line, maxBytes))
				res.OutputLines = 1
			}
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		res.OutputLines++
	}
	res.Content = b.String()
	return res
}

// cutRunes returns the longest prefix of s within n bytes that does not
// split a rune.
func cutRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for i := range s {
		if i > n {
			break
		}
		end = i
	}
	return s[:end]
}

// cleanContent sanitizes and truncates the text blocks of a tool result.
func cleanContent(blocks []hangar.ContentBlock, maxLines, maxBytes int) []hangar.ContentBlock {
	out := make([]hangar.ContentBlock, len(blocks))
	for i, b := range blocks {
		tb, ok := b.(hangar.TextBlock)
		if !ok {
			out[i] = b
			continue
		}
		r := TruncateHead(Sanitize(tb.Text), maxLines, maxBytes)
		text := r.Content
		if r.Truncated {
			text += fmt.Sprintf("\n[output truncated: showing %d of %d lines, %d bytes total]",
				r.OutputLines, r.TotalLines, r.TotalBytes)
		}
		out[i] = hangar.TextBlock{Text: text}
	}
	return out
}
