// ABOUTME: Renderer: converts a markdown token tree into render nodes in one pass
// ABOUTME: Numbers citations by first appearance, sanitizes HTML, bounds recursion depth

package render

import (
	"net/url"
	"strings"

	"github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/pkg/citation"
	"github.com/mauromedda/pi-chat-stream/pkg/markdown"
)

// MaxDepth bounds render recursion. Subtrees nested deeper are emitted as
// their literal source text.
const MaxDepth = 64

// Renderer converts token trees into render trees. It is safe for
// concurrent use.
type Renderer struct {
	sanitizer *Sanitizer
	maxDepth  int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSanitizer replaces the default HTML sanitizer.
func WithSanitizer(s *Sanitizer) Option {
	return func(r *Renderer) { r.sanitizer = s }
}

// WithMaxDepth overrides MaxDepth.
func WithMaxDepth(depth int) Option {
	return func(r *Renderer) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{maxDepth: MaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	if r.sanitizer == nil {
		r.sanitizer = NewSanitizer()
	}
	return r
}

// Render converts tokens into render nodes, resolving citation markers
// against cites. Citation numbers follow the order in which chunk ids first
// appear in the rendered tree.
func (r *Renderer) Render(tokens []*markdown.Token, cites []citation.Citation) []*Node {
	p := &pass{r: r, cites: cites, index: &citation.Index{}}
	return p.nodes(tokens, 0)
}

// pass holds the per-render state; the citation index is built once here
// rather than recomputed for every marker.
type pass struct {
	r     *Renderer
	cites []citation.Citation
	index *citation.Index
}

func (p *pass) nodes(tokens []*markdown.Token, depth int) []*Node {
	var out []*Node
	for _, t := range tokens {
		if n := p.node(t, depth); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (p *pass) node(t *markdown.Token, depth int) *Node {
	if depth >= p.r.maxDepth {
		log.Debug("render: depth limit reached, emitting %s as text", t.Kind)
		return &Node{Kind: NodeText, Text: t.Raw}
	}
	children := func() []*Node { return p.nodes(t.Children, depth+1) }

	switch t.Kind {
	case markdown.KindSpace:
		return nil
	case markdown.KindText:
		return &Node{Kind: NodeText, Text: t.Text}
	case markdown.KindStrong:
		return &Node{Kind: NodeStrong, Children: children()}
	case markdown.KindEm:
		return &Node{Kind: NodeEm, Children: children()}
	case markdown.KindDel:
		return &Node{Kind: NodeDel, Children: children()}
	case markdown.KindCodespan:
		return &Node{Kind: NodeCode, Text: t.Text}
	case markdown.KindCodeBlock:
		return &Node{Kind: NodeCodeBlock, Text: t.Text, Lang: t.Lang, Diagram: t.Diagram, Closed: t.Closed}
	case markdown.KindLink:
		if !safeHref(t.Href) {
			log.Debug("render: dropping unsafe link target %q", t.Href)
			return &Node{Kind: NodeText, Text: t.Text}
		}
		return &Node{Kind: NodeLink, Href: t.Href, Title: t.Title, Children: children()}
	case markdown.KindMathInline:
		return &Node{Kind: NodeMath, Text: t.Text}
	case markdown.KindMathDisplay:
		return &Node{Kind: NodeMath, Text: t.Text, Display: true}
	case markdown.KindCitationRef:
		d := citation.Resolve(t.Text, p.cites, p.index.Add(t.Text))
		return &Node{Kind: NodeCitation, Text: d.Marker(), Citation: &d}
	case markdown.KindThinkBlock:
		return &Node{Kind: NodeThink, Closed: t.Closed, Children: children()}
	case markdown.KindParagraph:
		return &Node{Kind: NodeParagraph, Children: children()}
	case markdown.KindHeading:
		return &Node{Kind: NodeHeading, Level: t.Depth, Children: children()}
	case markdown.KindList:
		return &Node{Kind: NodeList, Ordered: t.Ordered, Start: t.Start, Loose: t.Loose, Children: children()}
	case markdown.KindListItem:
		return &Node{Kind: NodeListItem, Loose: t.Loose, Children: children()}
	case markdown.KindBlockquote:
		return &Node{Kind: NodeBlockquote, Children: children()}
	case markdown.KindHr:
		return &Node{Kind: NodeRule}
	case markdown.KindBr:
		return &Node{Kind: NodeBreak}
	case markdown.KindHTML:
		if clean, ok := p.r.sanitizer.Sanitize(t.Text); ok {
			return &Node{Kind: NodeHTML, Text: clean}
		}
		log.Debug("render: HTML %q not allowed, emitting as text", t.Text)
		return &Node{Kind: NodeText, Text: t.Text}
	}

	log.Warn("render: unknown token kind %d, emitting as text", int(t.Kind))
	return &Node{Kind: NodeText, Text: t.Raw}
}

// safeHref accepts relative references, fragments and http(s)/mailto URLs.
func safeHref(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}
