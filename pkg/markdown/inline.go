// ABOUTME: Inline lexer: emphasis, code spans, links, math, citation markers, hard breaks
// ABOUTME: Delimiters without a valid closer are kept as literal text, never dropped

package markdown

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const citationPrefix = "[citation:"

const escapable = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	reAutolink   = regexp.MustCompile(`^<((?:https?://|mailto:)[^\s<>]+)>`)
	reInlineHTML = regexp.MustCompile(`^(?:<!--[\s\S]*?-->|</?[A-Za-z][A-Za-z0-9-]*(?:\s+[A-Za-z_:][\w.:-]*(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'=<>` + "`" + `]+))?)*\s*/?>)`)
)

// inlineRule tries to lex a token at src[i]. It returns the token and the
// offset just past it, or nil when nothing matches.
type inlineRule func(src string, i, depth int) (*Token, int)

// lexInline splits src into inline tokens whose Raw spans tile src.
func lexInline(src string, depth int) []*Token {
	if src == "" {
		return nil
	}
	if depth >= maxNesting {
		return []*Token{{Kind: KindText, Raw: src, Text: src}}
	}

	var toks []*Token
	textStart := 0
	flush := func(end int) {
		if end > textStart {
			toks = appendText(toks, src[textStart:end], src[textStart:end])
		}
	}

	for i := 0; i < len(src); {
		var rule inlineRule
		switch src[i] {
		case '\\':
			rule = lexEscape
		case '`':
			rule = lexCodespan
		case '$':
			rule = lexDollarMath
		case '[':
			rule = lexBracket
		case '<':
			rule = lexAngle
		case '*', '_':
			rule = lexEmphasis
		case '~':
			rule = lexStrike
		case ' ':
			rule = lexHardBreak
		default:
			i++
			continue
		}

		tok, next := rule(src, i, depth)
		if tok == nil {
			// Consume the whole delimiter run literally so a shorter run
			// inside it cannot match later.
			i += delimRun(src, i)
			continue
		}
		flush(i)
		if tok.Kind == KindText {
			toks = appendText(toks, tok.Raw, tok.Text)
		} else {
			toks = append(toks, tok)
		}
		i = next
		textStart = i
	}
	flush(len(src))
	return toks
}

// appendText adds a text span, merging it into a preceding text token.
func appendText(toks []*Token, raw, text string) []*Token {
	if n := len(toks); n > 0 && toks[n-1].Kind == KindText {
		toks[n-1].Raw += raw
		toks[n-1].Text += text
		return toks
	}
	return append(toks, &Token{Kind: KindText, Raw: raw, Text: text})
}

func delimRun(src string, i int) int {
	c := src[i]
	switch c {
	case '`', '$', '*', '_', '~', ' ':
		n := 1
		for i+n < len(src) && src[i+n] == c {
			n++
		}
		return n
	}
	return 1
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordBefore(src string, i int) bool {
	if i <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(src[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isWordAt(src string, i int) bool {
	if i >= len(src) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(src[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lexEscape(src string, i, depth int) (*Token, int) {
	if i+1 >= len(src) {
		return nil, i
	}
	switch c := src[i+1]; {
	case c == '(':
		return lexDelimitedMath(src, i, `\(`, `\)`, KindMathInline)
	case c == '[':
		return lexDelimitedMath(src, i, `\[`, `\]`, KindMathDisplay)
	case c == '\n':
		return &Token{Kind: KindBr, Raw: src[i : i+2]}, i + 2
	case strings.IndexByte(escapable, c) >= 0:
		return &Token{Kind: KindText, Raw: src[i : i+2], Text: src[i+1 : i+2]}, i + 2
	}
	return nil, i
}

func lexDelimitedMath(src string, i int, open, close string, kind Kind) (*Token, int) {
	start := i + len(open)
	rel := strings.Index(src[start:], close)
	if rel < 0 {
		return nil, i
	}
	expr := src[start : start+rel]
	if strings.TrimSpace(expr) == "" {
		return nil, i
	}
	end := start + rel + len(close)
	return &Token{Kind: kind, Raw: src[i:end], Text: expr}, end
}

func lexCodespan(src string, i, _ int) (*Token, int) {
	n := delimRun(src, i)
	for j := i + n; j < len(src); {
		if src[j] != '`' {
			j++
			continue
		}
		m := delimRun(src, j)
		if m == n {
			content := src[i+n : j]
			if len(content) >= 2 && content[0] == ' ' && content[len(content)-1] == ' ' && strings.TrimSpace(content) != "" {
				content = content[1 : len(content)-1]
			}
			content = strings.ReplaceAll(content, "\n", " ")
			return &Token{Kind: KindCodespan, Raw: src[i : j+m], Text: content}, j + m
		}
		j += m
	}
	return nil, i
}

func lexDollarMath(src string, i, _ int) (*Token, int) {
	if strings.HasPrefix(src[i:], "$$") {
		return lexDelimitedMath(src, i, "$$", "$$", KindMathDisplay)
	}
	start := i + 1
	if start >= len(src) || isSpaceByte(src[start]) {
		return nil, i
	}
	for j := start; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '$':
			if j == start || isSpaceByte(src[j-1]) {
				return nil, i
			}
			if j+1 < len(src) && src[j+1] >= '0' && src[j+1] <= '9' {
				return nil, i
			}
			return &Token{Kind: KindMathInline, Raw: src[i : j+1], Text: src[start:j]}, j + 1
		}
	}
	return nil, i
}

func lexBracket(src string, i, depth int) (*Token, int) {
	if strings.HasPrefix(src[i:], citationPrefix) {
		if tok, next := lexCitation(src, i); tok != nil {
			return tok, next
		}
	}
	return lexLink(src, i, depth)
}

func lexCitation(src string, i int) (*Token, int) {
	start := i + len(citationPrefix)
	rel := strings.IndexByte(src[start:], ']')
	if rel < 0 {
		return nil, i
	}
	id := strings.TrimSpace(src[start : start+rel])
	if id == "" || strings.ContainsAny(id, " \t\n[") {
		return nil, i
	}
	end := start + rel + 1
	return &Token{Kind: KindCitationRef, Raw: src[i:end], Text: id}, end
}

// matchBracket returns the index of the ']' closing the '[' at i.
func matchBracket(src string, i int) int {
	level := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '[':
			level++
		case ']':
			level--
			if level == 0 {
				return j
			}
		}
	}
	return -1
}

func lexLink(src string, i, depth int) (*Token, int) {
	closeAt := matchBracket(src, i)
	if closeAt < 0 || closeAt+1 >= len(src) || src[closeAt+1] != '(' {
		return nil, i
	}
	href, title, end, ok := parseDestination(src, closeAt+2)
	if !ok {
		return nil, i
	}
	label := src[i+1 : closeAt]
	return &Token{
		Kind:     KindLink,
		Raw:      src[i:end],
		Text:     label,
		Href:     href,
		Title:    title,
		Children: lexInline(label, depth+1),
	}, end
}

// parseDestination parses `href "title")` starting just after the '('.
func parseDestination(src string, p int) (href, title string, end int, ok bool) {
	skip := func() {
		for p < len(src) && (src[p] == ' ' || src[p] == '\t') {
			p++
		}
	}
	skip()
	if p < len(src) && src[p] == '<' {
		rel := strings.IndexByte(src[p+1:], '>')
		if rel < 0 {
			return "", "", 0, false
		}
		href = src[p+1 : p+1+rel]
		p += rel + 2
	} else {
		start, parens := p, 0
	dest:
		for ; p < len(src); p++ {
			switch c := src[p]; {
			case c == '\\':
				p++
			case c == '(':
				parens++
			case c == ')':
				if parens == 0 {
					break dest
				}
				parens--
			case isSpaceByte(c):
				break dest
			}
		}
		if p > len(src) {
			p = len(src)
		}
		href = src[start:p]
	}
	skip()
	if p < len(src) && (src[p] == '"' || src[p] == '\'') {
		q := src[p]
		rel := strings.IndexByte(src[p+1:], q)
		if rel < 0 {
			return "", "", 0, false
		}
		title = src[p+1 : p+1+rel]
		p += rel + 2
		skip()
	}
	if p >= len(src) || src[p] != ')' {
		return "", "", 0, false
	}
	return href, title, p + 1, true
}

func lexAngle(src string, i, _ int) (*Token, int) {
	rest := src[i:]
	if m := reAutolink.FindStringSubmatch(rest); m != nil {
		end := i + len(m[0])
		return &Token{
			Kind:     KindLink,
			Raw:      src[i:end],
			Text:     m[1],
			Href:     m[1],
			Children: []*Token{{Kind: KindText, Raw: m[1], Text: m[1]}},
		}, end
	}
	if loc := reInlineHTML.FindStringIndex(rest); loc != nil {
		end := i + loc[1]
		return &Token{Kind: KindHTML, Raw: src[i:end], Text: src[i:end]}, end
	}
	return nil, i
}

// canOpen reports whether the delimiter run of length n at i can open
// emphasis.
func canOpen(src string, i, n int) bool {
	after := i + n
	if after >= len(src) || isSpaceByte(src[after]) {
		return false
	}
	return src[i] != '_' || !isWordBefore(src, i)
}

func canClose(src string, j, n int) bool {
	if j == 0 || isSpaceByte(src[j-1]) {
		return false
	}
	return src[j] != '_' || !isWordAt(src, j+n)
}

func lexEmphasis(src string, i, depth int) (*Token, int) {
	n := delimRun(src, i)
	if n >= 2 {
		return lexStrong(src, i, depth)
	}
	c := src[i]
	if !canOpen(src, i, 1) {
		return nil, i
	}
	for j := i + 2; j < len(src); {
		if src[j] != c {
			j++
			continue
		}
		m := delimRun(src, j)
		// Double runs belong to strong spans nested inside.
		if m == 1 && canClose(src, j, 1) {
			inner := src[i+1 : j]
			return &Token{
				Kind:     KindEm,
				Raw:      src[i : j+1],
				Text:     inner,
				Children: lexInline(inner, depth+1),
			}, j + 1
		}
		j += m
	}
	return nil, i
}

func lexStrong(src string, i, depth int) (*Token, int) {
	c := src[i]
	if !canOpen(src, i, 2) {
		return nil, i
	}
	for j := i + max(3, delimRun(src, i)); j < len(src); {
		if src[j] != c {
			j++
			continue
		}
		m := delimRun(src, j)
		if m >= 2 {
			// Use the rightmost pair of the closing run so an inner em
			// closes first, as in ***text***.
			at := j + m - 2
			if canClose(src, at, 2) && at > i+2 {
				inner := src[i+2 : at]
				return &Token{
					Kind:     KindStrong,
					Raw:      src[i : at+2],
					Text:     inner,
					Children: lexInline(inner, depth+1),
				}, at + 2
			}
		}
		j += m
	}
	return nil, i
}

func lexStrike(src string, i, depth int) (*Token, int) {
	if !strings.HasPrefix(src[i:], "~~") || !canOpen(src, i, 2) {
		return nil, i
	}
	rel := strings.Index(src[i+3:], "~~")
	if rel < 0 {
		return nil, i
	}
	at := i + 3 + rel
	if !canClose(src, at, 2) {
		return nil, i
	}
	inner := src[i+2 : at]
	return &Token{
		Kind:     KindDel,
		Raw:      src[i : at+2],
		Text:     inner,
		Children: lexInline(inner, depth+1),
	}, at + 2
}

func lexHardBreak(src string, i, _ int) (*Token, int) {
	n := delimRun(src, i)
	if n < 2 || i+n >= len(src) || src[i+n] != '\n' {
		return nil, i
	}
	return &Token{Kind: KindBr, Raw: src[i : i+n+1]}, i + n + 1
}
