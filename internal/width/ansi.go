// ABOUTME: ANSI escape sequence stripping and SGR state tracking
// ABOUTME: Handles CSI, OSC, and simple ESC sequences emitted by styled renderers

package width

import "strings"

// StripANSI removes all ANSI escape sequences from s.
func StripANSI(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] == '\x1b' {
			i = skipANSISequence(s, i)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// skipANSISequence advances past an ANSI escape sequence starting at s[i].
// Returns the index of the first byte after the sequence.
func skipANSISequence(s string, i int) int {
	if i >= len(s) || s[i] != '\x1b' {
		return i
	}
	i++ // skip ESC
	if i >= len(s) {
		return i
	}

	switch s[i] {
	case '[':
		// CSI sequence: ESC [ ... <final byte 0x40-0x7E>
		i++
		for i < len(s) {
			if b := s[i]; b >= 0x40 && b <= 0x7E {
				return i + 1
			}
			i++
		}
		return i
	case ']':
		// OSC sequence: ESC ] ... (ST or BEL)
		i++
		for i < len(s) {
			if s[i] == '\x07' {
				return i + 1
			}
			if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
			i++
		}
		return i
	default:
		return i + 1
	}
}

// activeSGR tracks the SGR (Select Graphic Rendition) state so styles can
// be carried across wrapped lines.
type activeSGR struct {
	codes []string
}

func (a *activeSGR) apply(seq string) {
	if seq == "\x1b[0m" || seq == "\x1b[m" {
		a.codes = a.codes[:0]
		return
	}
	if strings.HasSuffix(seq, "m") {
		a.codes = append(a.codes, seq)
	}
}

func (a *activeSGR) String() string {
	return strings.Join(a.codes, "")
}
