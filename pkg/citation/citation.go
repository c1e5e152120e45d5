// ABOUTME: Citation records and display resolution for inline knowledge-source markers
// ABOUTME: Resolve picks a label from text, metadata.source, metadata.citation, or "Source N"

// Package citation resolves citation ids embedded in generated text to the
// display metadata shown next to the rendered marker.
package citation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Metadata holds optional provenance details for a citation.
type Metadata struct {
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Citation string `json:"citation,omitempty" yaml:"citation,omitempty"`
	Page     int    `json:"page,omitempty" yaml:"page,omitempty"`
	Row      int    `json:"row,omitempty" yaml:"row,omitempty"`
}

// Citation is one knowledge-source excerpt returned alongside a message.
type Citation struct {
	ChunkID           string    `json:"chunkId" yaml:"chunkId"`
	KnowledgeSourceID string    `json:"knowledgeSourceId,omitempty" yaml:"knowledgeSourceId,omitempty"`
	Text              string    `json:"text,omitempty" yaml:"text,omitempty"`
	Metadata          *Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Display is the resolved payload for one rendered citation marker.
type Display struct {
	Index             int
	ChunkID           string
	KnowledgeSourceID string
	Label             string
	Text              string
	Source            string
	Page              int
	Row               int
	Resolved          bool
}

// Marker returns the bracketed index shown inline, e.g. "[3]".
func (d Display) Marker() string {
	return fmt.Sprintf("[%d]", d.Index)
}

// ParseList decodes a JSON array of citations. A null or empty document
// yields an empty list.
func ParseList(data []byte) ([]Citation, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var list []Citation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing citations: %w", err)
	}
	return list, nil
}

// Find returns the citation whose ChunkID equals id.
func Find(id string, list []Citation) (Citation, bool) {
	for _, c := range list {
		if c.ChunkID == id {
			return c, true
		}
	}
	return Citation{}, false
}

// Resolve builds the display payload for citation id numbered index.
// An id absent from list yields an unresolved Display that still carries
// its index so it can be rendered as a plain marker.
func Resolve(id string, list []Citation, index int) Display {
	d := Display{Index: index, ChunkID: id}
	c, ok := Find(id, list)
	if !ok {
		d.Label = sourceLabel(index)
		return d
	}

	d.Resolved = true
	d.KnowledgeSourceID = c.KnowledgeSourceID
	d.Text = StripControl(c.Text)
	if c.Metadata != nil {
		d.Source = c.Metadata.Source
		d.Page = c.Metadata.Page
		d.Row = c.Metadata.Row
	}

	switch {
	case strings.TrimSpace(d.Text) != "":
		d.Label = strings.TrimSpace(d.Text)
	case c.Metadata != nil && strings.TrimSpace(c.Metadata.Source) != "":
		d.Label = strings.TrimSpace(c.Metadata.Source)
	case c.Metadata != nil && strings.TrimSpace(c.Metadata.Citation) != "":
		d.Label = strings.TrimSpace(c.Metadata.Citation)
	default:
		d.Label = sourceLabel(index)
	}
	return d
}

func sourceLabel(index int) string {
	return fmt.Sprintf("Source %d", index)
}

// StripControl removes control characters other than newline and tab.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
