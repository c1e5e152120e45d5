// ABOUTME: Per-conversation stream state machine driven by classified chunks
// ABOUTME: Idle -> Waiting -> Generating -> Done|Cancelled|Errored -> Idle; publishes events on transitions

package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mauromedda/pi-chat-stream/internal/log"
)

// DefaultCancelMarker is appended to the displayed content when a stream is
// cancelled without the backend supplying its own text.
const DefaultCancelMarker = " [cancelled]"

// Phase is the machine's position in the stream lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseGenerating
	PhaseDone
	PhaseCancelled
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseGenerating:
		return "generating"
	case PhaseDone:
		return "done"
	case PhaseCancelled:
		return "cancelled"
	case PhaseErrored:
		return "errored"
	}
	return "unknown"
}

// SubmitRequest starts a stream.
type SubmitRequest struct {
	// Key identifies the conversation slot the stream belongs to. Empty
	// means ConversationID, or a new conversation when that is empty too.
	Key            string
	ConversationID string
	Prompt         string
	Model          string
	Provider       string
	// Seq is the ordering slot of the user message; the assistant reply
	// takes Seq+1.
	Seq int
}

// StreamKey returns the key a stream for r is filed under.
func (r SubmitRequest) StreamKey() string {
	switch {
	case r.Key != "":
		return r.Key
	case r.ConversationID != "":
		return r.ConversationID
	}
	return "new"
}

// Submission is the optimistic message pair created by Submit.
type Submission struct {
	Key       string
	User      Message
	Assistant Message
}

// Machine tracks one stream for one conversation. All methods are safe for
// concurrent use; events are published outside the machine's lock so
// subscribers may call back into it.
type Machine struct {
	mu sync.Mutex

	key            string
	conversationID string
	phase          Phase
	outcome        Phase
	err            error
	state          State
	assistant      Message

	marker     string
	limiter    *rate.Limiter
	dispatcher *Dispatcher
	now        func() time.Time
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithDispatcher publishes the machine's events to d.
func WithDispatcher(d *Dispatcher) MachineOption {
	return func(m *Machine) { m.dispatcher = d }
}

// WithCancelMarker overrides DefaultCancelMarker.
func WithCancelMarker(marker string) MachineOption {
	return func(m *Machine) { m.marker = marker }
}

// WithFlushInterval throttles moving pending content to displayed content
// to at most once per interval. Zero flushes on every chunk.
func WithFlushInterval(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			m.limiter = nil
		}
	}
}

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// NewMachine returns an idle machine for the stream slot key.
func NewMachine(key string, opts ...MachineOption) *Machine {
	m := &Machine{
		key:    key,
		marker: DefaultCancelMarker,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit starts a stream. It fails with ErrBusy unless the machine is idle.
func (m *Machine) Submit(req SubmitRequest) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIdle {
		return Submission{}, ErrBusy
	}

	m.phase = PhaseWaiting
	m.outcome = PhaseIdle
	m.err = nil
	m.conversationID = req.ConversationID
	m.state = State{IsStreaming: true, IsWaiting: true}

	now := m.now()
	user := Message{
		ID:             NewTempID(),
		Role:           RoleUser,
		Content:        req.Prompt,
		Model:          req.Model,
		CreatedAt:      now,
		ConversationID: req.ConversationID,
		Pending:        true,
		Seq:            req.Seq,
	}
	m.assistant = Message{
		ID:             NewTempID(),
		Role:           RoleAssistant,
		Model:          req.Model,
		CreatedAt:      now,
		ConversationID: req.ConversationID,
		Pending:        true,
		Seq:            req.Seq + 1,
	}
	return Submission{Key: m.key, User: user, Assistant: m.assistant}, nil
}

// Apply advances the machine with one chunk. Chunks arriving while idle,
// including after a terminal signal, are ignored.
func (m *Machine) Apply(ch Chunk) {
	m.mu.Lock()
	events := m.apply(ch)
	m.mu.Unlock()
	m.publish(events)
}

func (m *Machine) apply(ch Chunk) []Event {
	if m.phase == PhaseIdle {
		log.Debug("stream %s: ignoring %s chunk while idle", m.key, ch.Status)
		return nil
	}

	switch ch.Status {
	case StatusWaiting:
		if m.phase == PhaseWaiting {
			m.state.IsWaiting = true
		}
		return nil

	case StatusGenerating:
		m.startGenerating()
		return nil

	case StatusContent:
		if ch.Content == "" {
			return nil
		}
		m.startGenerating()
		m.state.PendingContent += ch.Content
		if m.limiter == nil || m.limiter.Allow() {
			m.flush()
		}
		return []Event{m.event(EventContent, func(ev *Event) { ev.Delta = ch.Content })}

	case StatusCreated:
		if ch.ConversationID == "" {
			return nil
		}
		m.conversationID = ch.ConversationID
		m.assistant.ConversationID = ch.ConversationID
		return []Event{m.event(EventCreated, nil)}

	case StatusToolCall:
		return []Event{m.event(EventToolCall, func(ev *Event) { ev.ToolCalls = ch.ToolCalls })}

	case StatusCancelled:
		text := ch.Content
		if text == "" {
			text = m.marker
		}
		return m.finish(PhaseCancelled, text, nil)

	case StatusDone:
		return m.finish(PhaseDone, ch.Content, nil)

	case StatusError:
		return m.finish(PhaseErrored, "", &ProviderError{Message: ch.Error})
	}

	log.Debug("stream %s: ignoring chunk with status %q", m.key, ch.Status)
	return nil
}

// Fail ends the stream after a transport failure. Cancellation errors take
// the cancelled path and keep the content displayed so far.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	var events []Event
	if m.phase != PhaseIdle {
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
			events = m.finish(PhaseCancelled, m.marker, nil)
		} else {
			var te *TransportError
			if !errors.As(err, &te) {
				err = &TransportError{Op: "stream", Err: err}
			}
			events = m.finish(PhaseErrored, "", err)
		}
	}
	m.mu.Unlock()
	m.publish(events)
}

// Flush moves pending content to displayed content and returns the
// displayed content. Consumers using WithFlushInterval call it on their own
// clock.
func (m *Machine) Flush() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flush()
	return m.state.DisplayedContent
}

// State returns a snapshot of the observable state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Active reports whether a stream is in flight.
func (m *Machine) Active() bool {
	return m.Phase() != PhaseIdle
}

// Outcome returns the terminal phase of the last stream, or PhaseIdle if
// none has finished since the last Submit.
func (m *Machine) Outcome() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

// Err returns the error that ended the last stream, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Key returns the stream slot key.
func (m *Machine) Key() string { return m.key }

// ConversationID returns the conversation id, which may be assigned by the
// backend mid-stream.
func (m *Machine) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Assistant returns the assistant message being built.
func (m *Machine) Assistant() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.assistant
	msg.Content = m.state.DisplayedContent + m.state.PendingContent
	return msg
}

func (m *Machine) startGenerating() {
	if m.phase == PhaseWaiting {
		m.phase = PhaseGenerating
	}
	m.state.IsWaiting = false
}

func (m *Machine) flush() {
	if m.state.PendingContent == "" {
		return
	}
	m.state.DisplayedContent += m.state.PendingContent
	m.state.PendingContent = ""
}

// finish appends text, flushes, and returns the machine to idle.
func (m *Machine) finish(outcome Phase, text string, err error) []Event {
	m.state.PendingContent += text
	m.flush()
	m.state.IsStreaming = false
	m.state.IsWaiting = false

	m.assistant.Content = m.state.DisplayedContent
	if err != nil {
		m.assistant.Error = err.Error()
	}
	m.phase = PhaseIdle
	m.outcome = outcome
	m.err = err

	final := m.assistant
	if outcome == PhaseErrored {
		return []Event{m.event(EventError, func(ev *Event) {
			ev.Outcome = OutcomeErrored
			ev.Err = err
			ev.Message = &final
		})}
	}
	return []Event{m.event(EventDone, func(ev *Event) {
		ev.Outcome = OutcomeDone
		if outcome == PhaseCancelled {
			ev.Outcome = OutcomeCancelled
		}
		ev.Message = &final
	})}
}

func (m *Machine) event(kind EventKind, fill func(*Event)) Event {
	ev := Event{
		Kind:           kind,
		Key:            m.key,
		ConversationID: m.conversationID,
		Content:        m.state.DisplayedContent,
	}
	if fill != nil {
		fill(&ev)
	}
	return ev
}

func (m *Machine) publish(events []Event) {
	if m.dispatcher == nil {
		return
	}
	for _, ev := range events {
		m.dispatcher.Publish(ev)
	}
}
