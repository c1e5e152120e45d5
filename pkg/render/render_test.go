// ABOUTME: Tests for the renderer and its writers: citations, sanitizing, depth bound
// ABOUTME: ANSI output is compared after stripping escape sequences

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauromedda/pi-chat-stream/internal/width"
	"github.com/mauromedda/pi-chat-stream/pkg/citation"
	"github.com/mauromedda/pi-chat-stream/pkg/markdown"
)

func renderSrc(src string, cites []citation.Citation) []*Node {
	return New().Render(markdown.Lex(src), cites)
}

func citationNodes(nodes []*Node) []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			if n.Kind == NodeCitation {
				out = append(out, n)
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func TestRender_UnresolvedCitationIsPlainMarker(t *testing.T) {
	t.Parallel()

	nodes := renderSrc("[citation:x]", nil)
	assert.Equal(t, "[1]", PlainText(nodes))
	assert.Equal(t, "<p>[1]</p>\n", HTML(nodes))

	cites := citationNodes(nodes)
	require.Len(t, cites, 1)
	assert.False(t, cites[0].Citation.Resolved)
	assert.Equal(t, "Source 1", cites[0].Citation.Label)
}

func TestRender_CitationFirstAppearanceNumbers(t *testing.T) {
	t.Parallel()

	list := []citation.Citation{
		{ChunkID: "a", Text: "Alpha"},
		{ChunkID: "b", Metadata: &citation.Metadata{Source: "beta.pdf", Page: 4}},
	}
	nodes := renderSrc("b [citation:b] a [citation:a] again [citation:b]", list)

	cites := citationNodes(nodes)
	require.Len(t, cites, 3)
	assert.Equal(t, []string{"[1]", "[2]", "[1]"}, []string{cites[0].Text, cites[1].Text, cites[2].Text})
	assert.Equal(t, "beta.pdf", cites[0].Citation.Label)
	assert.Equal(t, 4, cites[0].Citation.Page)
	assert.Equal(t, "Alpha", cites[1].Citation.Label)

	assert.Contains(t, HTML(nodes), `<sup class="citation" data-chunk-id="a" title="Alpha">[2]</sup>`)
}

func TestRender_NumbersRestartPerPass(t *testing.T) {
	t.Parallel()

	r := New()
	first := citationNodes(r.Render(markdown.Lex("[citation:p] [citation:q]"), nil))
	second := citationNodes(r.Render(markdown.Lex("[citation:q]"), nil))
	assert.Equal(t, "[2]", first[1].Text)
	assert.Equal(t, "[1]", second[0].Text)
}

func TestRender_DisallowedHTMLIsEscaped(t *testing.T) {
	t.Parallel()

	out := HTML(renderSrc("a <script>alert(1)</script>", nil))
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;alert(1)&lt;/script&gt;")
}

func TestRender_AllowedInlineHTML(t *testing.T) {
	t.Parallel()

	out := HTML(renderSrc("press <kbd>Ctrl</kbd>", nil))
	assert.Equal(t, "<p>press <kbd>Ctrl</kbd></p>\n", out)
}

func TestSanitizer(t *testing.T) {
	t.Parallel()

	s := NewSanitizer()

	clean, ok := s.Sanitize(`<span onclick="x()" class="k">hi</span>`)
	require.True(t, ok)
	assert.Contains(t, clean, `class="k"`)
	assert.NotContains(t, clean, "onclick")

	tests := []string{"<!-- note -->", `<iframe src="x">`, "<style>", "   "}
	for _, raw := range tests {
		_, ok := s.Sanitize(raw)
		assert.False(t, ok, "input %q", raw)
	}
}

func TestRender_UnsafeLinkBecomesText(t *testing.T) {
	t.Parallel()

	out := HTML(renderSrc("[x](javascript:alert(1))", nil))
	assert.Equal(t, "<p>x</p>\n", out)

	out = HTML(renderSrc(`[docs](https://x.dev "Docs")`, nil))
	assert.Equal(t, `<p><a href="https://x.dev" title="Docs">docs</a></p>`+"\n", out)
}

func TestRender_DepthBound(t *testing.T) {
	t.Parallel()

	nodes := New(WithMaxDepth(2)).Render(markdown.Lex("> > > deep"), nil)
	require.Len(t, nodes, 1)
	inner := nodes[0].Children[0].Children[0]
	assert.Equal(t, NodeText, inner.Kind)
	assert.Equal(t, "> deep", inner.Text)
}

func TestRender_DeepInputDoesNotOverflow(t *testing.T) {
	t.Parallel()

	src := strings.Repeat("> ", 200) + "x"
	assert.NotPanics(t, func() {
		_ = HTML(renderSrc(src, nil))
	})
}

func TestHTML_Blocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "code", src: "```go\nx := 1\n```", want: `class="chroma"`},
		{name: "mermaid", src: "```mermaid\ngraph TD; A-->B\n```", want: `<pre class="mermaid">graph TD; A--&gt;B` + "\n</pre>"},
		{name: "inline math", src: "$x^2$", want: `<span class="math math-inline" data-tex="x^2">x^2</span>`},
		{name: "display math", src: "$$\na+b\n$$", want: `<div class="math math-display"`},
		{name: "open think", src: "<think>hmm", want: `<details class="think" open><summary>Thinking</summary>`},
		{name: "closed think", src: "<think>hmm</think>", want: `<details class="think"><summary>Thinking</summary>`},
		{name: "ordered list", src: "3. a\n4. b", want: "<ol start=\"3\">\n<li>a</li>\n<li>b</li>\n</ol>\n"},
		{name: "heading", src: "## Title", want: "<h2>Title</h2>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, HTML(renderSrc(tt.src, nil)), tt.want)
		})
	}
}

func TestHighlightCSS(t *testing.T) {
	t.Parallel()

	css, err := HighlightCSS("")
	require.NoError(t, err)
	assert.Contains(t, css, ".chroma")
}

func TestANSI_WrapsParagraphs(t *testing.T) {
	t.Parallel()

	out := ANSI(renderSrc("the quick brown fox jumps over the lazy dog", nil), 20)
	lines := strings.Split(width.StripANSI(out), "\n")
	require.Greater(t, len(lines), 1)
	for _, l := range lines {
		assert.LessOrEqual(t, width.VisibleWidth(l), 20, "line %q", l)
	}
}

func TestANSI_Blocks(t *testing.T) {
	t.Parallel()

	out := width.StripANSI(ANSI(renderSrc("# Title\n\n- a\n- b\n\n> quote\n\n```python\nprint(1)\n```", nil), 0))
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "• a\n• b")
	assert.Contains(t, out, "│ quote")
	assert.Contains(t, out, "print")
}

func TestANSI_CitationsAndLinks(t *testing.T) {
	t.Parallel()

	out := width.StripANSI(ANSI(renderSrc("see [docs](https://x.dev) [citation:c]", nil), 0))
	assert.Equal(t, "see docs (https://x.dev) [1]", out)
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "paragraphs", src: "a\n\nb", want: "a\n\nb"},
		{name: "emphasis", src: "**bold** and _em_", want: "bold and em"},
		{name: "list", src: "- a\n- b", want: "- a\n- b"},
		{name: "ordered", src: "2. x\n3. y", want: "2. x\n3. y"},
		{name: "quote", src: "> q", want: "> q"},
		{name: "code", src: "```\ncode\n```", want: "code"},
		{name: "math", src: "$$\nE=mc^2\n$$", want: "E=mc^2"},
		{name: "autolink", src: "<https://x.dev>", want: "https://x.dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PlainText(renderSrc(tt.src, nil)))
		})
	}
}
