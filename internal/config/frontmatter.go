// ABOUTME: YAML frontmatter parsing for markdown documents fed to the renderer
// ABOUTME: A document may carry a title and its citation list ahead of the body

package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mauromedda/pi-chat-stream/pkg/citation"
)

const frontmatterDelimiter = "---"

// ErrUnterminatedFrontmatter is returned when the opening delimiter has no
// closing partner.
var ErrUnterminatedFrontmatter = errors.New("unterminated frontmatter: missing closing ---")

// Document is the frontmatter a markdown reply file may carry.
type Document struct {
	Title          string              `yaml:"title,omitempty"`
	ConversationID string              `yaml:"conversationId,omitempty"`
	Citations      []citation.Citation `yaml:"citations,omitempty"`
}

// ParseFrontmatter decodes the YAML block between leading --- lines into T
// and returns the remaining body. Content without frontmatter is returned
// unchanged with a zero T. CRLF line endings are normalized first.
func ParseFrontmatter[T any](content string) (T, string, error) {
	var out T

	text := strings.ReplaceAll(content, "\r\n", "\n")
	head, body, found, err := splitFrontmatter(text)
	if err != nil {
		return out, "", err
	}
	if !found {
		return out, content, nil
	}

	if err := yaml.Unmarshal([]byte(head), &out); err != nil {
		return out, "", fmt.Errorf("parse frontmatter YAML: %w", err)
	}
	return out, body, nil
}

func splitFrontmatter(text string) (head, body string, found bool, err error) {
	open := frontmatterDelimiter + "\n"
	if !strings.HasPrefix(text, open) {
		return "", text, false, nil
	}
	rest := text[len(open):]

	// Empty block: the closing line follows immediately.
	if rest == frontmatterDelimiter || strings.HasPrefix(rest, open) {
		return "", strings.TrimPrefix(rest[len(frontmatterDelimiter):], "\n"), true, nil
	}

	head, after, ok := strings.Cut(rest, "\n"+frontmatterDelimiter)
	if !ok {
		return "", "", false, ErrUnterminatedFrontmatter
	}
	return head, strings.TrimPrefix(after, "\n"), true, nil
}

// ParseDocument splits a markdown file into its Document frontmatter and
// body.
func ParseDocument(content string) (Document, string, error) {
	return ParseFrontmatter[Document](content)
}
