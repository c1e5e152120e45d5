// ABOUTME: Dispatcher-to-Bubble Tea bridge forwarding stream events as tea.Msg
// ABOUTME: Delivery happens on the stream goroutine; Send queues into the program

package interactive

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

// ProgramSender is the interface for sending messages to Bubble Tea.
// Matches *tea.Program's Send method.
type ProgramSender interface {
	Send(msg tea.Msg)
}

// Forward sends every event published on d to program and returns the
// unsubscribe function.
func Forward(program ProgramSender, d *stream.Dispatcher) func() {
	return d.Subscribe(func(ev stream.Event) {
		program.Send(StreamEventMsg{Event: ev})
	})
}
