// ABOUTME: Markdown token tree: tagged union of block and inline node kinds
// ABOUTME: Every token keeps its exact source span in Raw so the input can be rebuilt

// Package markdown tokenizes chat-model markdown into a token tree.
//
// On top of the usual block and inline syntax it understands fenced code
// (with mermaid diagrams tagged for external rendering), TeX math between
// $…$, $$…$$, \(…\) and \[…\] delimiters, <think>…</think> reasoning blocks
// and [citation:<chunkId>] markers. Lexing never fails: syntax that does not
// close properly degrades to literal text, except fenced code and think
// blocks, which keep their partial content so a streaming response renders
// while it is still arriving.
package markdown

import "strings"

// Kind identifies the kind of a token.
type Kind int

const (
	KindText Kind = iota
	KindStrong
	KindEm
	KindDel
	KindCodespan
	KindCodeBlock
	KindLink
	KindMathInline
	KindMathDisplay
	KindCitationRef
	KindThinkBlock
	KindParagraph
	KindHeading
	KindList
	KindListItem
	KindBlockquote
	KindHr
	KindBr
	KindHTML
	KindSpace
)

var kindNames = [...]string{
	KindText:        "text",
	KindStrong:      "strong",
	KindEm:          "em",
	KindDel:         "del",
	KindCodespan:    "codespan",
	KindCodeBlock:   "codeBlock",
	KindLink:        "link",
	KindMathInline:  "mathInline",
	KindMathDisplay: "mathDisplay",
	KindCitationRef: "citationRef",
	KindThinkBlock:  "thinkBlock",
	KindParagraph:   "paragraph",
	KindHeading:     "heading",
	KindList:        "list",
	KindListItem:    "listItem",
	KindBlockquote:  "blockquote",
	KindHr:          "hr",
	KindBr:          "br",
	KindHTML:        "html",
	KindSpace:       "space",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Token is one node of the parse tree. Which fields are meaningful depends
// on Kind; container kinds hold their content in Children.
type Token struct {
	Kind Kind
	// Raw is the exact source span this token was lexed from.
	Raw string
	// Text is the literal payload: text content, code body, math expression,
	// think body, citation id, or raw HTML.
	Text string

	Lang    string // codeBlock info-string language
	Diagram bool   // codeBlock meant for an external diagram renderer
	Closed  bool   // codeBlock/thinkBlock saw its closing delimiter

	Href  string // link destination
	Title string // link title

	Depth int // heading level 1-6

	Ordered bool // list
	Start   int  // list: number of the first ordered item
	Loose   bool // list/listItem: items separated by blank lines

	Children []*Token
}

// Source concatenates the Raw spans of tokens. For the top-level result of
// Lex this reproduces the lexed input exactly.
func Source(tokens []*Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Raw)
	}
	return b.String()
}

// Walk visits tokens depth-first in document order. Returning false from fn
// skips the token's children.
func Walk(tokens []*Token, fn func(*Token) bool) {
	for _, t := range tokens {
		if fn(t) {
			Walk(t.Children, fn)
		}
	}
}

// CitationIDs returns the citation ids referenced in tokens in
// first-appearance order, without duplicates.
func CitationIDs(tokens []*Token) []string {
	seen := make(map[string]bool)
	var ids []string
	Walk(tokens, func(t *Token) bool {
		if t.Kind == KindCitationRef && !seen[t.Text] {
			seen[t.Text] = true
			ids = append(ids, t.Text)
		}
		return true
	})
	return ids
}
