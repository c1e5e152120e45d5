// ABOUTME: Block-level lexer: fences, math, think blocks, headings, lists, quotes, paragraphs
// ABOUTME: Line-oriented; each rule consumes an exact source span so Raw spans tile the input

package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// maxNesting bounds container recursion (lists, quotes, think blocks, inline
// spans). Deeper content is kept as literal text.
const maxNesting = 32

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var (
	reHeading   = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*\r?$`)
	reHr        = regexp.MustCompile(`^ {0,3}(?:(?:-[ \t]*){3,}|(?:_[ \t]*){3,}|(?:\*[ \t]*){3,})\r?$`)
	reQuote     = regexp.MustCompile(`^ {0,3}> ?`)
	reListItem  = regexp.MustCompile(`^( {0,3})([*+-]|(\d{1,9})[.)])([ \t]+|\r?$)`)
	reHTMLBlock = regexp.MustCompile(`(?i)^ {0,3}(?:<!--|</?(?:address|article|aside|blockquote|center|details|dialog|div|dl|fieldset|figcaption|figure|footer|form|h[1-6]|header|hr|iframe|li|main|nav|ol|p|pre|script|section|style|summary|table|tbody|td|tfoot|th|thead|tr|ul)(?:[\s/>]|$))`)
)

// lexBlocks splits src into block tokens whose Raw spans tile src.
func lexBlocks(src string, depth int) []*Token {
	var toks []*Token
	pos := 0
	for pos < len(src) {
		tok, next := nextBlock(src, pos, depth)
		toks = append(toks, tok)
		pos = next
	}
	return toks
}

func nextBlock(src string, pos, depth int) (*Token, int) {
	if tok, next := lexSpace(src, pos); tok != nil {
		return tok, next
	}
	if tok, next := lexFence(src, pos); tok != nil {
		return tok, next
	}
	if tok, next := lexMathBlock(src, pos); tok != nil {
		return tok, next
	}
	if tok, next := lexThink(src, pos, depth); tok != nil {
		return tok, next
	}
	if tok, next := lexHeading(src, pos, depth); tok != nil {
		return tok, next
	}
	if tok, next := lexHr(src, pos); tok != nil {
		return tok, next
	}
	if tok, next := lexBlockquote(src, pos, depth); tok != nil {
		return tok, next
	}
	if tok, next := lexList(src, pos, depth); tok != nil {
		return tok, next
	}
	if tok, next := lexHTMLBlock(src, pos); tok != nil {
		return tok, next
	}
	return lexParagraph(src, pos, depth)
}

// lineAt returns the line starting at pos without its newline, and the
// offset of the following line.
func lineAt(src string, pos int) (string, int) {
	if i := strings.IndexByte(src[pos:], '\n'); i >= 0 {
		return src[pos : pos+i], pos + i + 1
	}
	return src[pos:], len(src)
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func leadingSpaces(line string) int {
	n := 0
	for n < len(line) && line[n] == ' ' {
		n++
	}
	return n
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

func lexSpace(src string, pos int) (*Token, int) {
	end := pos
	for end < len(src) {
		line, next := lineAt(src, end)
		if !isBlank(line) {
			break
		}
		end = next
	}
	if end == pos {
		return nil, pos
	}
	return &Token{Kind: KindSpace, Raw: src[pos:end]}, end
}

// fenceOpen reports the fence character, run length, and info string of an
// opening code fence line.
func fenceOpen(line string) (byte, int, string, bool) {
	indent := leadingSpaces(line)
	if indent > 3 || indent >= len(line) {
		return 0, 0, "", false
	}
	rest := line[indent:]
	ch := rest[0]
	if ch != '`' && ch != '~' {
		return 0, 0, "", false
	}
	n := 0
	for n < len(rest) && rest[n] == ch {
		n++
	}
	if n < 3 {
		return 0, 0, "", false
	}
	info := strings.TrimSpace(rest[n:])
	if ch == '`' && strings.Contains(info, "`") {
		return 0, 0, "", false
	}
	return ch, n, info, true
}

func isFenceClose(line string, ch byte, n int) bool {
	indent := leadingSpaces(line)
	if indent > 3 {
		return false
	}
	rest := line[indent:]
	run := 0
	for run < len(rest) && rest[run] == ch {
		run++
	}
	return run >= n && isBlank(rest[run:])
}

func lexFence(src string, pos int) (*Token, int) {
	line, bodyStart := lineAt(src, pos)
	ch, n, info, ok := fenceOpen(line)
	if !ok {
		return nil, pos
	}
	lang := ""
	if fields := strings.Fields(info); len(fields) > 0 {
		lang = fields[0]
	}
	tok := &Token{
		Kind:    KindCodeBlock,
		Lang:    lang,
		Diagram: strings.EqualFold(lang, "mermaid"),
	}

	for p := bodyStart; p < len(src); {
		l, next := lineAt(src, p)
		if isFenceClose(l, ch, n) {
			tok.Raw = src[pos:next]
			tok.Text = src[bodyStart:p]
			tok.Closed = true
			return tok, next
		}
		p = next
	}

	// Unterminated: keep everything that arrived so far as code.
	tok.Raw = src[pos:]
	tok.Text = src[bodyStart:]
	return tok, len(src)
}

func lexMathBlock(src string, pos int) (*Token, int) {
	line, _ := lineAt(src, pos)
	indent := leadingSpaces(line)
	if indent > 3 {
		return nil, pos
	}
	rest := line[indent:]
	var closer string
	switch {
	case strings.HasPrefix(rest, "$$"):
		closer = "$$"
	case strings.HasPrefix(rest, `\[`):
		closer = `\]`
	default:
		return nil, pos
	}

	bodyStart := pos + indent + 2
	rel := strings.Index(src[bodyStart:], closer)
	if rel < 0 {
		return nil, pos
	}
	closeAt := bodyStart + rel
	after, next := lineAt(src, closeAt+len(closer))
	if !isBlank(after) {
		return nil, pos
	}
	expr := src[bodyStart:closeAt]
	if strings.TrimSpace(expr) == "" {
		return nil, pos
	}
	return &Token{Kind: KindMathDisplay, Raw: src[pos:next], Text: expr}, next
}

func isThinkOpen(line string) bool {
	indent := leadingSpaces(line)
	return indent <= 3 && strings.HasPrefix(line[indent:], thinkOpen)
}

func lexThink(src string, pos, depth int) (*Token, int) {
	if depth >= maxNesting {
		return nil, pos
	}
	line, _ := lineAt(src, pos)
	if !isThinkOpen(line) {
		return nil, pos
	}
	bodyStart := pos + leadingSpaces(line) + len(thinkOpen)

	rel := strings.Index(src[bodyStart:], thinkClose)
	if rel < 0 {
		body := src[bodyStart:]
		return &Token{
			Kind:     KindThinkBlock,
			Raw:      src[pos:],
			Text:     body,
			Children: lexBlocks(body, depth+1),
		}, len(src)
	}

	closeAt := bodyStart + rel
	end := closeAt + len(thinkClose)
	if strings.HasPrefix(src[end:], "\r\n") {
		end += 2
	} else if strings.HasPrefix(src[end:], "\n") {
		end++
	}
	body := src[bodyStart:closeAt]
	return &Token{
		Kind:     KindThinkBlock,
		Raw:      src[pos:end],
		Text:     body,
		Closed:   true,
		Children: lexBlocks(body, depth+1),
	}, end
}

func lexHeading(src string, pos, depth int) (*Token, int) {
	line, next := lineAt(src, pos)
	m := reHeading.FindStringSubmatch(line)
	if m == nil {
		return nil, pos
	}
	text := m[2]
	return &Token{
		Kind:     KindHeading,
		Raw:      src[pos:next],
		Text:     text,
		Depth:    len(m[1]),
		Children: lexInline(text, depth),
	}, next
}

func lexHr(src string, pos int) (*Token, int) {
	line, next := lineAt(src, pos)
	if !reHr.MatchString(line) {
		return nil, pos
	}
	return &Token{Kind: KindHr, Raw: src[pos:next]}, next
}

func lexBlockquote(src string, pos, depth int) (*Token, int) {
	if depth >= maxNesting {
		return nil, pos
	}
	var inner strings.Builder
	end := pos
	for end < len(src) {
		line, next := lineAt(src, end)
		m := reQuote.FindString(line)
		if m == "" {
			break
		}
		inner.WriteString(line[len(m):])
		if next > end+len(line) {
			inner.WriteByte('\n')
		}
		end = next
	}
	if end == pos {
		return nil, pos
	}
	body := inner.String()
	return &Token{
		Kind:     KindBlockquote,
		Raw:      src[pos:end],
		Text:     body,
		Children: lexBlocks(body, depth+1),
	}, end
}

type listMarker struct {
	ordered       bool
	delim         byte // bullet character, or '.'/')' for ordered lists
	start         int
	contentIndent int
	content       string // first-line content after the marker
}

func parseMarker(line string) (listMarker, bool) {
	m := reListItem.FindStringSubmatch(line)
	if m == nil {
		return listMarker{}, false
	}
	marker := m[2]
	mk := listMarker{}
	if m[3] != "" {
		mk.ordered = true
		mk.start, _ = strconv.Atoi(m[3])
		mk.delim = marker[len(marker)-1]
	} else {
		mk.delim = marker[0]
	}

	gap := len(strings.TrimRight(m[4], "\r"))
	if gap == 0 || gap > 4 {
		gap = 1
	}
	mk.contentIndent = len(m[1]) + len(marker) + gap

	content := line[len(m[1])+len(marker):]
	if len(content) >= gap {
		content = content[gap:]
	} else {
		content = ""
	}
	mk.content = strings.TrimSuffix(content, "\r")
	return mk, true
}

func (mk listMarker) sameList(other listMarker) bool {
	return mk.ordered == other.ordered && mk.delim == other.delim
}

func lexList(src string, pos, depth int) (*Token, int) {
	if depth >= maxNesting {
		return nil, pos
	}
	line, _ := lineAt(src, pos)
	first, ok := parseMarker(line)
	if !ok {
		return nil, pos
	}

	list := &Token{Kind: KindList, Ordered: first.ordered, Start: first.start}
	p := pos
	for p < len(src) {
		line, _ := lineAt(src, p)
		mk, ok := parseMarker(line)
		if !ok || !mk.sameList(first) || (p > pos && reHr.MatchString(line)) {
			break
		}
		item, next, looseItem := lexListItem(src, p, mk, depth)
		list.Children = append(list.Children, item)
		if looseItem {
			list.Loose = true
		}
		p = next

		// Blank lines between items belong to the preceding item; trailing
		// blank lines after the last item are left for a space token.
		q := p
		for q < len(src) {
			l, nx := lineAt(src, q)
			if !isBlank(l) {
				break
			}
			q = nx
		}
		if q >= len(src) {
			break
		}
		l, _ := lineAt(src, q)
		nm, ok := parseMarker(l)
		if !ok || !nm.sameList(first) || reHr.MatchString(l) {
			break
		}
		if q > p {
			list.Loose = true
			item.Raw += src[p:q]
			p = q
		}
	}

	list.Raw = src[pos:p]
	if list.Loose {
		for _, item := range list.Children {
			item.Loose = true
		}
	}
	return list, p
}

func lexListItem(src string, pos int, mk listMarker, depth int) (*Token, int, bool) {
	line, next := lineAt(src, pos)
	var body strings.Builder
	body.WriteString(mk.content)
	if next > pos+len(line) {
		body.WriteByte('\n')
	}

	end := next
	loose := false
	for end < len(src) {
		l, nx := lineAt(src, end)
		if isBlank(l) {
			// A blank line continues the item only if indented content follows.
			r := end
			blanks := 0
			for r < len(src) {
				l2, n2 := lineAt(src, r)
				if !isBlank(l2) {
					break
				}
				blanks++
				r = n2
			}
			if r >= len(src) {
				break
			}
			l2, _ := lineAt(src, r)
			if leadingSpaces(l2) < mk.contentIndent {
				break
			}
			body.WriteString(strings.Repeat("\n", blanks))
			loose = true
			end = r
			continue
		}

		switch {
		case leadingSpaces(l) >= mk.contentIndent:
			body.WriteString(l[mk.contentIndent:])
		case !startsBlock(l):
			// Lazy continuation of the item's paragraph.
			body.WriteString(strings.TrimLeft(l, " "))
		default:
			return newListItem(src[pos:end], body.String(), depth), end, loose
		}
		if nx > end+len(l) {
			body.WriteByte('\n')
		}
		end = nx
	}
	return newListItem(src[pos:end], body.String(), depth), end, loose
}

func newListItem(raw, body string, depth int) *Token {
	return &Token{
		Kind:     KindListItem,
		Raw:      raw,
		Text:     body,
		Children: lexBlocks(body, depth+1),
	}
}

// startsBlock reports whether line opens a block that ends a lazy paragraph
// continuation.
func startsBlock(line string) bool {
	if _, _, _, ok := fenceOpen(line); ok {
		return true
	}
	if _, ok := parseMarker(line); ok {
		return true
	}
	return isThinkOpen(line) ||
		reHeading.MatchString(line) ||
		reHr.MatchString(line) ||
		reQuote.MatchString(line) ||
		reHTMLBlock.MatchString(line)
}

// interruptsParagraph reports whether the line at pos ends the paragraph
// above it.
func interruptsParagraph(src string, pos int) bool {
	line, _ := lineAt(src, pos)
	if _, _, _, ok := fenceOpen(line); ok {
		return true
	}
	if tok, _ := lexMathBlock(src, pos); tok != nil {
		return true
	}
	if mk, ok := parseMarker(line); ok {
		// Empty items and ordered lists not starting at 1 do not interrupt.
		return strings.TrimSpace(mk.content) != "" && (!mk.ordered || mk.start == 1)
	}
	return isThinkOpen(line) ||
		reHeading.MatchString(line) ||
		reHr.MatchString(line) ||
		reQuote.MatchString(line) ||
		reHTMLBlock.MatchString(line)
}

func lexHTMLBlock(src string, pos int) (*Token, int) {
	line, _ := lineAt(src, pos)
	if !reHTMLBlock.MatchString(line) {
		return nil, pos
	}
	end := pos
	for end < len(src) {
		l, nx := lineAt(src, end)
		if isBlank(l) {
			break
		}
		end = nx
	}
	raw := src[pos:end]
	return &Token{Kind: KindHTML, Raw: raw, Text: trimEOL(raw)}, end
}

func lexParagraph(src string, pos, depth int) (*Token, int) {
	_, end := lineAt(src, pos)
	for end < len(src) {
		l, nx := lineAt(src, end)
		if isBlank(l) || interruptsParagraph(src, end) {
			break
		}
		end = nx
	}
	raw := src[pos:end]
	text := trimEOL(raw)
	return &Token{
		Kind:     KindParagraph,
		Raw:      raw,
		Text:     text,
		Children: lexInline(text, depth),
	}, end
}
