// ABOUTME: Terminal writer for render trees: lipgloss styles, chroma terminal highlighting
// ABOUTME: Paragraphs are word-wrapped to the target width with grapheme-aware measurement

package render

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/charmbracelet/lipgloss"

	"github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/internal/width"
)

var (
	ansiHeading  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	ansiStrong   = lipgloss.NewStyle().Bold(true)
	ansiEm       = lipgloss.NewStyle().Italic(true)
	ansiDel      = lipgloss.NewStyle().Strikethrough(true)
	ansiCode     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	ansiLink     = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("4"))
	ansiMath     = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	ansiCitation = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	ansiMuted    = lipgloss.NewStyle().Faint(true)
)

// ANSIWriter writes render trees as styled terminal text.
type ANSIWriter struct {
	// Width is the wrap column. Zero or less disables wrapping.
	Width int
	// Style is the chroma style for code blocks.
	Style string

	formatter chroma.Formatter
}

// NewANSIWriter returns a writer wrapping at width with the given chroma
// style (DefaultStyle when empty).
func NewANSIWriter(width int, style string) *ANSIWriter {
	if style == "" {
		style = DefaultStyle
	}
	f := formatters.Get("terminal256")
	if f == nil {
		f = formatters.Fallback
	}
	return &ANSIWriter{Width: width, Style: style, formatter: f}
}

// ANSI writes nodes as styled terminal text wrapped at width.
func ANSI(nodes []*Node, width int) string {
	return NewANSIWriter(width, "").Write(nodes)
}

// Write renders nodes to a string ending without a trailing newline.
func (w *ANSIWriter) Write(nodes []*Node) string {
	return strings.Join(w.blocks(nodes, w.Width), "\n")
}

// blocks lays out nodes as lines. Consecutive inline nodes are joined into
// one wrapped run; block nodes are separated by a blank line.
func (w *ANSIWriter) blocks(nodes []*Node, cols int) []string {
	var out []string
	var run []*Node
	emit := func(lines []string) {
		if len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, lines...)
	}
	flush := func() {
		if len(run) > 0 {
			emit(wrap(w.inline(run), cols))
			run = nil
		}
	}
	for _, n := range nodes {
		if !n.isBlock() {
			run = append(run, n)
			continue
		}
		flush()
		emit(w.block(n, cols))
	}
	flush()
	return out
}

func (w *ANSIWriter) block(n *Node, cols int) []string {
	switch n.Kind {
	case NodeParagraph:
		return wrap(w.inline(n.Children), cols)
	case NodeHeading:
		prefix := strings.Repeat("#", n.Level) + " "
		return wrap(ansiHeading.Render(prefix+w.inline(n.Children)), cols)
	case NodeCodeBlock:
		return w.codeBlock(n)
	case NodeMath:
		return indent(strings.Split(strings.TrimSpace(ansiMath.Render(strings.TrimSpace(n.Text))), "\n"), "  ")
	case NodeList:
		return w.list(n, cols)
	case NodeListItem:
		return w.blocks(n.Children, cols)
	case NodeBlockquote:
		return prefixLines(w.blocks(n.Children, cols-2), ansiMuted.Render("│")+" ")
	case NodeRule:
		return []string{ansiMuted.Render(strings.Repeat("─", ruleWidth(cols)))}
	case NodeThink:
		title := "Thinking"
		if !n.Closed {
			title += "..."
		}
		body := prefixLines(w.blocks(n.Children, cols-2), ansiMuted.Render("┊")+" ")
		for i, l := range body {
			body[i] = ansiMuted.Render(l)
		}
		return append([]string{ansiMuted.Render(title)}, body...)
	}
	return wrap(w.inline([]*Node{n}), cols)
}

func (w *ANSIWriter) codeBlock(n *Node) []string {
	code := strings.TrimSuffix(n.Text, "\n")
	var lines []string
	switch {
	case n.Diagram:
		lines = append(lines, ansiMuted.Render("["+n.Lang+" diagram]"))
		lines = append(lines, strings.Split(code, "\n")...)
	default:
		if n.Lang != "" {
			lines = append(lines, ansiMuted.Render(n.Lang))
		}
		out, err := highlight(w.formatter, code, n.Lang, w.Style)
		if err != nil {
			log.Debug("render: terminal highlight failed for %q: %v", n.Lang, err)
			out = code
		}
		lines = append(lines, strings.Split(strings.TrimSuffix(out, "\n"), "\n")...)
	}
	return indent(lines, "  ")
}

func (w *ANSIWriter) list(n *Node, cols int) []string {
	var out []string
	for i, item := range n.Children {
		marker := "• "
		if n.Ordered {
			marker = fmt.Sprintf("%d. ", n.Start+i)
		}
		pad := strings.Repeat(" ", len(marker))
		body := w.itemLines(item, cols-len(marker))
		if len(body) == 0 {
			body = []string{""}
		}
		if n.Loose && i > 0 {
			out = append(out, "")
		}
		out = append(out, marker+body[0])
		for _, l := range body[1:] {
			if l == "" {
				out = append(out, l)
				continue
			}
			out = append(out, pad+l)
		}
	}
	return out
}

// itemLines lays out a list item; tight items stack their blocks without
// blank separators.
func (w *ANSIWriter) itemLines(item *Node, cols int) []string {
	if item.Loose {
		return w.blocks(item.Children, cols)
	}
	var out []string
	for _, c := range item.Children {
		out = append(out, w.blocks([]*Node{c}, cols)...)
	}
	return out
}

func (w *ANSIWriter) inline(nodes []*Node) string {
	var b strings.Builder
	for _, n := range nodes {
		switch n.Kind {
		case NodeText:
			b.WriteString(n.Text)
		case NodeStrong:
			b.WriteString(ansiStrong.Render(w.inline(n.Children)))
		case NodeEm:
			b.WriteString(ansiEm.Render(w.inline(n.Children)))
		case NodeDel:
			b.WriteString(ansiDel.Render(w.inline(n.Children)))
		case NodeCode:
			b.WriteString(ansiCode.Render(n.Text))
		case NodeLink:
			label := w.inline(n.Children)
			b.WriteString(ansiLink.Render(label))
			if width.StripANSI(label) != n.Href {
				b.WriteString(ansiMuted.Render(" (" + n.Href + ")"))
			}
		case NodeMath:
			b.WriteString(ansiMath.Render(n.Text))
		case NodeCitation:
			b.WriteString(ansiCitation.Render(n.Text))
		case NodeBreak:
			b.WriteString("\n")
		case NodeHTML:
			b.WriteString(htmlText(n.Text))
		default:
			b.WriteString(strings.Join(w.block(n, 0), "\n"))
		}
	}
	return b.String()
}

func wrap(s string, cols int) []string {
	return width.WrapWords(s, cols)
}

func indent(lines []string, pad string) []string {
	for i, l := range lines {
		lines[i] = pad + l
	}
	return lines
}

func prefixLines(lines []string, prefix string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = prefix + l
	}
	return out
}

func ruleWidth(cols int) int {
	if cols <= 0 || cols > 80 {
		return 40
	}
	return cols
}
