// ABOUTME: Stream events and the dispatcher that fans them out to subscribers by kind
// ABOUTME: Delivery is synchronous and in subscription order, built on the generic event bus

package stream

import (
	"encoding/json"

	"github.com/mauromedda/pi-chat-stream/internal/eventbus"
)

// EventKind identifies a stream event.
type EventKind int

const (
	// EventContent carries a content delta and the text displayed so far.
	EventContent EventKind = iota + 1
	// EventDone ends a stream with Outcome Done or Cancelled.
	EventDone
	// EventCreated reports the backend-assigned conversation id.
	EventCreated
	// EventError ends a stream with a provider or transport error.
	EventError
	// EventToolCall reports tool activity; the stream continues.
	EventToolCall
)

var eventKindNames = map[EventKind]string{
	EventContent:  "content-chunk",
	EventDone:     "stream-done",
	EventCreated:  "conversation-created",
	EventError:    "stream-error",
	EventToolCall: "tool-call",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Outcome is how a stream ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDone
	OutcomeCancelled
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeErrored:
		return "errored"
	}
	return "none"
}

// Event is published by a Machine as it applies chunks.
type Event struct {
	Kind EventKind
	// Key identifies the submission; it is stable for the whole stream even
	// when the conversation id is assigned mid-stream.
	Key            string
	ConversationID string

	Delta   string // EventContent
	Content string // displayed content after the event

	Outcome   Outcome         // EventDone, EventError
	ToolCalls json.RawMessage // EventToolCall
	Err       error           // EventError

	// Message is the final assistant message on terminal events.
	Message *Message
}

// Dispatcher delivers stream events to subscribers.
type Dispatcher struct {
	bus *eventbus.Bus[Event]
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{bus: eventbus.New[Event]()}
}

// Subscribe registers fn for the given kinds, or for every kind when none
// are given. The returned function unsubscribes.
func (d *Dispatcher) Subscribe(fn func(Event), kinds ...EventKind) func() {
	if len(kinds) == 0 {
		return d.bus.Subscribe(fn)
	}
	want := make(map[EventKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	return d.bus.SubscribeWhen(func(ev Event) bool { return want[ev.Kind] }, fn)
}

// Publish delivers ev to matching subscribers.
func (d *Dispatcher) Publish(ev Event) {
	d.bus.Publish(ev)
}

// Subscribers returns the number of registered subscribers.
func (d *Dispatcher) Subscribers() int {
	return d.bus.Count()
}
