// ABOUTME: One-call markdown pipeline: memoized lexing, rendering and a chosen output writer
// ABOUTME: Used by the print and interactive consumers and the render command

package render

import (
	"fmt"
	"sync"

	"github.com/mauromedda/pi-chat-stream/pkg/citation"
	"github.com/mauromedda/pi-chat-stream/pkg/markdown"
)

// Format selects an output writer.
type Format string

const (
	FormatText Format = "text"
	FormatANSI Format = "ansi"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatANSI, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unknown render format %q", s)
}

// Pipeline lexes, renders and writes markdown. It is safe for concurrent
// use; the width may change between calls, e.g. on terminal resize.
type Pipeline struct {
	format   Format
	style    string
	lexer    *markdown.Lexer
	renderer *Renderer

	mu    sync.Mutex
	width int
}

// NewPipeline returns a pipeline writing format. Width and style only
// affect ANSI output.
func NewPipeline(format Format, width int, style string, opts ...Option) (*Pipeline, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	return &Pipeline{
		format:   format,
		style:    style,
		width:    width,
		lexer:    markdown.NewLexer(markdown.DefaultMemoSize),
		renderer: New(opts...),
	}, nil
}

// Format returns the output format.
func (p *Pipeline) Format() Format { return p.format }

// SetWidth changes the ANSI wrap column.
func (p *Pipeline) SetWidth(w int) {
	p.mu.Lock()
	p.width = w
	p.mu.Unlock()
}

// Write renders src. Citation markers are resolved against cites.
func (p *Pipeline) Write(src string, cites []citation.Citation) string {
	return p.write(p.lexer.Lex(src), cites)
}

// WriteMessage renders src as the content of message id, so repeated
// renders of an unchanged message reuse its tokens.
func (p *Pipeline) WriteMessage(id, src string, cites []citation.Citation) string {
	return p.write(p.lexer.LexMessage(id, src), cites)
}

func (p *Pipeline) write(tokens []*markdown.Token, cites []citation.Citation) string {
	nodes := p.renderer.Render(tokens, cites)
	switch p.format {
	case FormatHTML:
		return HTML(nodes)
	case FormatANSI:
		p.mu.Lock()
		w := p.width
		p.mu.Unlock()
		return NewANSIWriter(w, p.style).Write(nodes)
	}
	return PlainText(nodes)
}
