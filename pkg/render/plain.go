// ABOUTME: Plain-text writer for render trees, used for clipboard copies and logs
// ABOUTME: Keeps citation markers and TeX source; drops all styling

package render

import (
	"fmt"
	"strings"
)

// PlainText writes nodes as unstyled text. Blocks are separated by blank
// lines.
func PlainText(nodes []*Node) string {
	var b strings.Builder
	writePlainBlocks(&b, nodes, "")
	return strings.TrimRight(b.String(), "\n")
}

func writePlainBlocks(b *strings.Builder, nodes []*Node, prefix string) {
	inRun := false
	for _, n := range nodes {
		if !n.isBlock() {
			if !inRun {
				b.WriteString(prefix)
				inRun = true
			}
			writePlainInline(b, n)
			continue
		}
		if inRun {
			b.WriteString("\n\n")
			inRun = false
		}
		writePlainBlock(b, n, prefix)
		b.WriteString("\n")
	}
	if inRun {
		b.WriteString("\n")
	}
}

func writePlainBlock(b *strings.Builder, n *Node, prefix string) {
	switch n.Kind {
	case NodeParagraph:
		b.WriteString(prefix)
		writePlainChildren(b, n.Children)
		b.WriteString("\n")
	case NodeHeading:
		b.WriteString(prefix)
		writePlainChildren(b, n.Children)
		b.WriteString("\n")
	case NodeCodeBlock:
		for _, l := range strings.Split(strings.TrimSuffix(n.Text, "\n"), "\n") {
			b.WriteString(prefix + l + "\n")
		}
	case NodeMath:
		b.WriteString(prefix + strings.TrimSpace(n.Text) + "\n")
	case NodeList:
		for i, item := range n.Children {
			marker := "- "
			if n.Ordered {
				marker = fmt.Sprintf("%d. ", n.Start+i)
			}
			var ib strings.Builder
			writePlainBlocks(&ib, item.Children, "")
			lines := strings.Split(strings.TrimRight(ib.String(), "\n"), "\n")
			pad := strings.Repeat(" ", len(marker))
			for j, l := range lines {
				switch {
				case j == 0:
					b.WriteString(prefix + marker + l + "\n")
				case l == "":
					if n.Loose {
						b.WriteString("\n")
					}
				default:
					b.WriteString(prefix + pad + l + "\n")
				}
			}
		}
	case NodeListItem:
		writePlainBlocks(b, n.Children, prefix)
	case NodeBlockquote:
		writePlainBlocks(b, n.Children, prefix+"> ")
	case NodeRule:
		b.WriteString(prefix + "---\n")
	case NodeThink:
		writePlainBlocks(b, n.Children, prefix)
	}
}

func writePlainChildren(b *strings.Builder, nodes []*Node) {
	for _, n := range nodes {
		writePlainInline(b, n)
	}
}

func writePlainInline(b *strings.Builder, n *Node) {
	switch n.Kind {
	case NodeText, NodeCode, NodeMath, NodeCitation:
		b.WriteString(n.Text)
	case NodeBreak:
		b.WriteString("\n")
	case NodeHTML:
		b.WriteString(htmlText(n.Text))
	case NodeLink:
		var label strings.Builder
		writePlainChildren(&label, n.Children)
		b.WriteString(label.String())
		if n.Href != "" && label.String() != n.Href {
			b.WriteString(" (" + n.Href + ")")
		}
	default:
		writePlainChildren(b, n.Children)
	}
}
