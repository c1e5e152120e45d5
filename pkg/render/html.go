// ABOUTME: HTML writer for render trees with chroma syntax highlighting via CSS classes
// ABOUTME: Math, diagrams, think blocks and citations get markup for client-side renderers

package render

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"

	"github.com/mauromedda/pi-chat-stream/internal/log"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "monokai"

var htmlFormatter = chromahtml.New(chromahtml.WithClasses(true))

// HTML writes nodes as an HTML fragment.
func HTML(nodes []*Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeHTML(&b, n)
	}
	return b.String()
}

// HighlightCSS returns the stylesheet matching the classes emitted for code
// blocks by HTML.
func HighlightCSS(style string) (string, error) {
	var b strings.Builder
	if err := htmlFormatter.WriteCSS(&b, chromaStyle(style)); err != nil {
		return "", fmt.Errorf("writing highlight css: %w", err)
	}
	return b.String(), nil
}

func writeHTMLChildren(b *strings.Builder, nodes []*Node) {
	for _, n := range nodes {
		writeHTML(b, n)
	}
}

func wrapHTML(b *strings.Builder, tag string, n *Node) {
	fmt.Fprintf(b, "<%s>", tag)
	writeHTMLChildren(b, n.Children)
	fmt.Fprintf(b, "</%s>", tag)
}

func writeHTML(b *strings.Builder, n *Node) {
	esc := html.EscapeString
	switch n.Kind {
	case NodeText:
		b.WriteString(esc(n.Text))
	case NodeStrong:
		wrapHTML(b, "strong", n)
	case NodeEm:
		wrapHTML(b, "em", n)
	case NodeDel:
		wrapHTML(b, "del", n)
	case NodeCode:
		b.WriteString("<code>" + esc(n.Text) + "</code>")
	case NodeLink:
		b.WriteString(`<a href="` + esc(n.Href) + `"`)
		if n.Title != "" {
			b.WriteString(` title="` + esc(n.Title) + `"`)
		}
		b.WriteString(">")
		writeHTMLChildren(b, n.Children)
		b.WriteString("</a>")
	case NodeMath:
		if n.Display {
			b.WriteString(`<div class="math math-display" data-tex="` + esc(n.Text) + `">` + esc(n.Text) + "</div>\n")
		} else {
			b.WriteString(`<span class="math math-inline" data-tex="` + esc(n.Text) + `">` + esc(n.Text) + "</span>")
		}
	case NodeCitation:
		writeCitationHTML(b, n)
	case NodeBreak:
		b.WriteString("<br>\n")
	case NodeHTML:
		b.WriteString(n.Text)
	case NodeParagraph:
		wrapHTML(b, "p", n)
		b.WriteString("\n")
	case NodeHeading:
		wrapHTML(b, fmt.Sprintf("h%d", n.Level), n)
		b.WriteString("\n")
	case NodeCodeBlock:
		writeCodeBlockHTML(b, n)
	case NodeList:
		tag := "ul"
		if n.Ordered {
			tag = "ol"
		}
		if n.Ordered && n.Start != 1 {
			fmt.Fprintf(b, "<ol start=\"%d\">\n", n.Start)
		} else {
			fmt.Fprintf(b, "<%s>\n", tag)
		}
		writeHTMLChildren(b, n.Children)
		fmt.Fprintf(b, "</%s>\n", tag)
	case NodeListItem:
		b.WriteString("<li>")
		if n.Loose {
			writeHTMLChildren(b, n.Children)
		} else {
			// Tight items drop the paragraph wrapper.
			for _, c := range n.Children {
				if c.Kind == NodeParagraph {
					writeHTMLChildren(b, c.Children)
					continue
				}
				writeHTML(b, c)
			}
		}
		b.WriteString("</li>\n")
	case NodeBlockquote:
		b.WriteString("<blockquote>\n")
		writeHTMLChildren(b, n.Children)
		b.WriteString("</blockquote>\n")
	case NodeRule:
		b.WriteString("<hr>\n")
	case NodeThink:
		b.WriteString(`<details class="think"`)
		if !n.Closed {
			b.WriteString(" open")
		}
		b.WriteString("><summary>Thinking</summary>\n")
		writeHTMLChildren(b, n.Children)
		b.WriteString("</details>\n")
	}
}

func writeCitationHTML(b *strings.Builder, n *Node) {
	d := n.Citation
	if d == nil || !d.Resolved {
		b.WriteString(html.EscapeString(n.Text))
		return
	}
	fmt.Fprintf(b, `<sup class="citation" data-chunk-id="%s" title="%s">%s</sup>`,
		html.EscapeString(d.ChunkID), html.EscapeString(d.Label), html.EscapeString(d.Marker()))
}

func writeCodeBlockHTML(b *strings.Builder, n *Node) {
	if n.Diagram {
		b.WriteString(`<pre class="mermaid">` + html.EscapeString(n.Text) + "</pre>\n")
		return
	}
	out, err := highlight(htmlFormatter, n.Text, n.Lang, DefaultStyle)
	if err == nil {
		b.WriteString(out)
		return
	}
	log.Debug("render: html highlight failed for %q: %v", n.Lang, err)
	class := ""
	if n.Lang != "" {
		class = ` class="language-` + html.EscapeString(n.Lang) + `"`
	}
	b.WriteString("<pre><code" + class + ">" + html.EscapeString(n.Text) + "</code></pre>\n")
}

// highlight formats code with chroma. An unknown language falls back to
// content analysis, then to plain text.
func highlight(f chroma.Formatter, code, lang, style string) (string, error) {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", fmt.Errorf("tokenising %s: %w", lang, err)
	}
	var b strings.Builder
	if err := f.Format(&b, chromaStyle(style), it); err != nil {
		return "", fmt.Errorf("formatting %s: %w", lang, err)
	}
	return b.String(), nil
}

func chromaStyle(name string) *chroma.Style {
	if s := styles.Get(name); s != nil {
		return s
	}
	return styles.Fallback
}
