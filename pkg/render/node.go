// ABOUTME: Render tree produced from markdown tokens and consumed by the output writers
// ABOUTME: Citation nodes carry their resolved display payload and first-appearance number

// Package render turns markdown tokens into a render tree with citations
// resolved and raw HTML sanitized, and writes that tree as HTML, styled
// terminal text, or plain text.
package render

import "github.com/mauromedda/pi-chat-stream/pkg/citation"

// NodeKind identifies the kind of a render node.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeStrong
	NodeEm
	NodeDel
	NodeCode
	NodeLink
	NodeMath
	NodeCitation
	NodeBreak
	NodeHTML
	NodeParagraph
	NodeHeading
	NodeCodeBlock
	NodeList
	NodeListItem
	NodeBlockquote
	NodeRule
	NodeThink
)

// Node is one element of the render tree.
type Node struct {
	Kind NodeKind
	// Text is literal text, code, a TeX expression, or sanitized HTML.
	Text string

	Lang    string // code block language
	Diagram bool   // code block is diagram source
	Closed  bool   // code or think block was terminated

	Href  string
	Title string

	Level   int  // heading level
	Ordered bool // list
	Start   int  // list
	Loose   bool // list

	Display bool // math: display rather than inline

	Citation *citation.Display

	Children []*Node
}

// isBlock reports whether n starts on its own line.
func (n *Node) isBlock() bool {
	switch n.Kind {
	case NodeParagraph, NodeHeading, NodeCodeBlock, NodeList, NodeListItem,
		NodeBlockquote, NodeRule, NodeThink:
		return true
	case NodeMath:
		return n.Display
	}
	return false
}
