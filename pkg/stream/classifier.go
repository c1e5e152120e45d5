// ABOUTME: Chunk classifier: turns wire fragments into typed chunks
// ABOUTME: Recognizes data records and the [DONE] sentinel; malformed payloads are logged and skipped

package stream

import (
	"strings"
	"sync/atomic"

	"github.com/mauromedda/pi-chat-stream/internal/log"
)

const (
	recordMarker = "data:"
	doneSentinel = "[DONE]"
)

// Classifier converts fragments from a transport.Reader into chunks. A
// Classifier belongs to a single stream and is not safe for concurrent use.
type Classifier struct {
	done        bool
	parseErrors atomic.Int64
	onParseErr  func(*ParseError)
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithParseErrorHandler registers a callback for skipped records, in
// addition to the warning that is always logged.
func WithParseErrorHandler(fn func(*ParseError)) ClassifierOption {
	return func(c *Classifier) { c.onParseErr = fn }
}

// NewClassifier returns a Classifier for one stream.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify splits fragment into records and returns their chunks in order.
// Once the sentinel has been seen every later call returns nothing.
func (c *Classifier) Classify(fragment string) []Chunk {
	var out []Chunk
	for _, line := range strings.Split(fragment, "\n") {
		if c.done {
			return out
		}
		if ch, ok := c.classifyRecord(strings.TrimSuffix(line, "\r")); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Done reports whether the sentinel has been seen.
func (c *Classifier) Done() bool { return c.done }

// ParseErrors returns the number of records skipped as malformed.
func (c *Classifier) ParseErrors() int64 { return c.parseErrors.Load() }

func (c *Classifier) classifyRecord(line string) (Chunk, bool) {
	if !strings.HasPrefix(line, recordMarker) {
		// Blank separators, comments and other SSE fields carry nothing.
		return Chunk{}, false
	}
	data := strings.TrimPrefix(line[len(recordMarker):], " ")
	if strings.TrimSpace(data) == "" {
		return Chunk{}, false
	}
	if strings.TrimSpace(data) == doneSentinel {
		c.done = true
		return Chunk{Status: StatusDone}, true
	}

	p, err := decodePayload([]byte(data))
	if err != nil {
		perr := &ParseError{Record: data, Err: err}
		c.parseErrors.Add(1)
		log.Warn("stream: skipping record: %v", perr)
		if c.onParseErr != nil {
			c.onParseErr(perr)
		}
		return Chunk{}, false
	}
	return classifyPayload(&p)
}

func classifyPayload(p *payload) (Chunk, bool) {
	ch := Chunk{
		Content:        p.text(),
		ConversationID: p.ConversationID,
		ToolCalls:      p.ToolCalls,
	}

	if p.Status == string(StatusError) || p.Error != "" {
		ch.Status = StatusError
		ch.Error = p.Error
		if ch.Error == "" {
			ch.Error = ch.Content
		}
		return ch, true
	}

	switch s := Status(p.Status); s {
	case StatusWaiting, StatusGenerating, StatusCancelled, StatusDone,
		StatusToolCall, StatusCreated, StatusContent:
		ch.Status = s
		return ch, true
	case "":
		switch {
		case ch.Content != "":
			ch.Status = StatusContent
		case ch.ConversationID != "":
			ch.Status = StatusCreated
		case len(ch.ToolCalls) > 0:
			ch.Status = StatusToolCall
		default:
			return Chunk{}, false
		}
		return ch, true
	}

	log.Debug("stream: ignoring record with unknown status %q", p.Status)
	return Chunk{}, false
}
