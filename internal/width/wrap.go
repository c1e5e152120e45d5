// ABOUTME: ANSI-aware text wrapping for rendered markdown output
// ABOUTME: WrapWords breaks on spaces; WrapTextWithAnsi hard-wraps at column boundaries

package width

import (
	"strings"

	"github.com/rivo/uniseg"
)

// WrapTextWithAnsi wraps s into lines of at most maxWidth visible columns.
// ANSI escape sequences are preserved and do not count toward width.
// Words are broken wherever the column limit falls.
func WrapTextWithAnsi(s string, maxWidth int) []string {
	if maxWidth <= 0 {
		return nil
	}
	if s == "" {
		return []string{""}
	}

	var lines []string
	var cur strings.Builder
	curWidth := 0
	var sgr activeSGR

	newLine := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		curWidth = 0
		cur.WriteString(sgr.String())
	}

	i := 0
	for i < len(s) {
		if s[i] == '\n' {
			newLine()
			i++
			continue
		}
		if s[i] == '\x1b' {
			end := skipANSISequence(s, i)
			seq := s[i:end]
			sgr.apply(seq)
			cur.WriteString(seq)
			i = end
			continue
		}

		cluster, rest, _, _ := uniseg.FirstGraphemeClusterInString(s[i:], -1)
		w := graphemeWidth(cluster)
		if curWidth+w > maxWidth && curWidth > 0 {
			newLine()
		}
		cur.WriteString(cluster)
		curWidth += w
		i += len(s[i:]) - len(rest)
	}

	lines = append(lines, cur.String())
	return lines
}

// WrapWords wraps s at word boundaries so that no line exceeds maxWidth
// visible columns. Words longer than maxWidth are hard-wrapped. Existing
// newlines are kept. A maxWidth of zero or less disables wrapping.
func WrapWords(s string, maxWidth int) []string {
	if maxWidth <= 0 {
		return strings.Split(s, "\n")
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		out = append(out, wrapLine(para, maxWidth)...)
	}
	return out
}

func wrapLine(line string, maxWidth int) []string {
	if VisibleWidth(line) <= maxWidth {
		return []string{line}
	}
	var lines []string
	var cur strings.Builder
	curWidth := 0
	for _, word := range strings.Split(line, " ") {
		ww := VisibleWidth(word)
		switch {
		case curWidth == 0 && ww > maxWidth:
			parts := WrapTextWithAnsi(word, maxWidth)
			lines = append(lines, parts[:len(parts)-1]...)
			cur.WriteString(parts[len(parts)-1])
			curWidth = VisibleWidth(parts[len(parts)-1])
		case curWidth == 0:
			cur.WriteString(word)
			curWidth = ww
		case curWidth+1+ww <= maxWidth:
			cur.WriteByte(' ')
			cur.WriteString(word)
			curWidth += 1 + ww
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			curWidth = 0
			if ww > maxWidth {
				parts := WrapTextWithAnsi(word, maxWidth)
				lines = append(lines, parts[:len(parts)-1]...)
				word = parts[len(parts)-1]
				ww = VisibleWidth(word)
			}
			cur.WriteString(word)
			curWidth = ww
		}
	}
	return append(lines, cur.String())
}
