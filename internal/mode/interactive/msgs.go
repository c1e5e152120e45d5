// ABOUTME: Custom tea.Msg types for the interactive chat view
// ABOUTME: Stream events forwarded from the dispatcher, submit results and the render tick

package interactive

import (
	"time"

	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

// StreamEventMsg carries a stream event into the program.
type StreamEventMsg struct{ Event stream.Event }

// submittedMsg reports the outcome of starting a stream.
type submittedMsg struct {
	machine *stream.Machine
	err     error
}

// tickMsg drives throttled re-rendering of the live reply.
type tickMsg time.Time
