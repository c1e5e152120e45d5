// ABOUTME: HTML sanitizer for raw HTML found in model output
// ABOUTME: Tag allow-list checked with the x/net/html tokenizer, then a bluemonday policy pass

package render

import (
	"errors"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// DefaultAllowedTags are the HTML elements passed through to output.
var DefaultAllowedTags = []string{
	"abbr", "b", "br", "code", "del", "details", "div", "em", "i", "ins",
	"kbd", "mark", "p", "pre", "s", "small", "span", "strong", "sub",
	"summary", "sup", "table", "tbody", "td", "th", "thead", "tr", "u",
}

// Sanitizer decides whether a raw HTML fragment may be emitted as markup.
type Sanitizer struct {
	tags   map[string]bool
	policy *bluemonday.Policy
}

// NewSanitizer returns a Sanitizer allowing tags, or DefaultAllowedTags
// when none are given.
func NewSanitizer(tags ...string) *Sanitizer {
	if len(tags) == 0 {
		tags = DefaultAllowedTags
	}
	allowed := make(map[string]bool, len(tags))
	for _, t := range tags {
		allowed[strings.ToLower(t)] = true
	}

	policy := bluemonday.NewPolicy()
	policy.AllowElements(tags...)
	policy.AllowNoAttrs().OnElements(tags...)
	policy.AllowAttrs("class", "title").Globally()
	policy.AllowAttrs("open").OnElements("details")

	return &Sanitizer{tags: allowed, policy: policy}
}

// Sanitize returns the cleaned fragment and true when every tag in raw is
// allow-listed. Comments, doctypes and unknown tags reject the fragment so
// the caller can show it as literal text instead.
func (s *Sanitizer) Sanitize(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				return "", false
			}
			clean := s.policy.Sanitize(raw)
			if strings.TrimSpace(clean) == "" {
				return "", false
			}
			return clean, true
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if !s.tags[string(name)] {
				return "", false
			}
		case html.CommentToken, html.DoctypeToken:
			return "", false
		}
	}
}

// htmlText returns the text content of an HTML fragment with all tags
// removed, for outputs that cannot show markup.
func htmlText(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}
