// ABOUTME: Chat message and observable stream state types
// ABOUTME: Optimistic messages carry a temp- id and an ordering slot until the server confirms them

package stream

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mauromedda/pi-chat-stream/pkg/citation"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const tempIDPrefix = "temp-"

// Message is one chat message, either authoritative (from the backend) or
// optimistic (created locally on submit).
type Message struct {
	ID             string              `json:"id"`
	Role           Role                `json:"role"`
	Content        string              `json:"content"`
	Model          string              `json:"model,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	ConversationID string              `json:"conversationId,omitempty"`
	Citations      []citation.Citation `json:"citations,omitempty"`
	Error          string              `json:"error,omitempty"`

	// Pending marks an optimistic message not yet confirmed by the backend.
	Pending bool `json:"-"`
	// Seq is the message's position within its conversation.
	Seq int `json:"-"`
}

// NewTempID returns an id for an optimistic message.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was issued by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// State is the observable state of a stream.
type State struct {
	IsStreaming bool
	IsWaiting   bool
	// PendingContent has been received but not yet flushed for display.
	PendingContent string
	// DisplayedContent only grows during a stream; it is reset by the next
	// submission.
	DisplayedContent string
}
