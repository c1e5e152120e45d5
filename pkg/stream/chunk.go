// ABOUTME: Chunk and status types produced by the classifier from wire records
// ABOUTME: Status values mirror the backend's stream status field one to one

// Package stream consumes a streaming chat completion: it classifies wire
// records into typed chunks, drives the per-conversation state machine, and
// publishes the resulting events to subscribers.
package stream

import "encoding/json"

// Status classifies a chunk.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusGenerating Status = "generating"
	StatusCancelled  Status = "cancelled"
	StatusDone       Status = "done"
	StatusToolCall   Status = "tool_call"
	StatusCreated    Status = "created"
	StatusContent    Status = "content"
	StatusError      Status = "error"
)

// Terminal reports whether s ends a stream.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDone || s == StatusError
}

// Chunk is one classified record of the stream.
type Chunk struct {
	Status         Status
	Content        string
	ConversationID string
	ToolCalls      json.RawMessage
	// Error is the provider's message for StatusError chunks.
	Error string
}
