// ABOUTME: Headless print mode with text, rendered (ansi/html), JSON, and stream-JSON formatters
// ABOUTME: Subscribes to stream events; text prints deltas live, rendered formats print the final message

package print

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mauromedda/pi-chat-stream/pkg/citation"
	"github.com/mauromedda/pi-chat-stream/pkg/render"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

// Output formats beyond the render formats.
const (
	FormatJSON       = "json"
	FormatStreamJSON = "stream-json"
)

// Config configures print mode output.
type Config struct {
	OutputFormat string // "text" (default), "ansi", "html", "json", "stream-json"
	Width        int    // ANSI wrap column; 0 = no wrapping
	Style        string // chroma style for highlighted code
	Citations    []citation.Citation

	Out io.Writer // defaults to os.Stdout
	Err io.Writer // defaults to os.Stderr
}

// Run submits req through mgr and prints the reply. It returns once the
// stream has ended, with stream.ErrCancelled if it was cancelled.
func Run(ctx context.Context, mgr *stream.Manager, req stream.SubmitRequest, cfg Config) error {
	p, err := New(cfg)
	if err != nil {
		return err
	}
	detach := p.Attach(mgr.Dispatcher())
	defer detach()

	m, err := mgr.Submit(ctx, req)
	if err != nil {
		return err
	}
	mgr.Wait()

	if m.Outcome() == stream.PhaseCancelled {
		return stream.ErrCancelled
	}
	return m.Err()
}

// Replay feeds a recorded stream body through the pipeline and prints it
// as if it were live.
func Replay(ctx context.Context, src io.Reader, cfg Config, opts ...stream.ConsumeOption) error {
	p, err := New(cfg)
	if err != nil {
		return err
	}
	d := stream.NewDispatcher()
	p.Attach(d)

	m := stream.NewMachine("replay", stream.WithDispatcher(d))
	if _, err := m.Submit(stream.SubmitRequest{Key: "replay"}); err != nil {
		return err
	}
	return stream.Consume(ctx, src, m, opts...)
}

// Printer writes one stream's events in the configured format.
type Printer struct {
	mu   sync.Mutex
	f    formatter
	done bool
}

// New returns a Printer for cfg.
func New(cfg Config) (*Printer, error) {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Err == nil {
		cfg.Err = os.Stderr
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = string(render.FormatText)
	}
	f, err := newFormatter(cfg)
	if err != nil {
		return nil, err
	}
	return &Printer{f: f}, nil
}

// Attach subscribes the printer to d and returns the unsubscribe function.
func (p *Printer) Attach(d *stream.Dispatcher) func() {
	return d.Subscribe(p.Handle)
}

// Handle writes one event.
func (p *Printer) Handle(ev stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	switch ev.Kind {
	case stream.EventContent:
		p.f.text(ev.Delta)
	case stream.EventCreated:
		p.f.created(ev.ConversationID)
	case stream.EventToolCall:
		p.f.toolCall(ev.ToolCalls)
	case stream.EventDone, stream.EventError:
		p.done = true
		p.f.end(ev)
	}
}

// formatter abstracts output formatting.
type formatter interface {
	text(delta string)
	created(conversationID string)
	toolCall(raw json.RawMessage)
	end(ev stream.Event)
}

func newFormatter(cfg Config) (formatter, error) {
	switch cfg.OutputFormat {
	case FormatJSON:
		return &jsonFormatter{out: cfg.Out}, nil
	case FormatStreamJSON:
		return &streamJSONFormatter{out: cfg.Out}, nil
	case string(render.FormatText):
		return &textFormatter{out: cfg.Out, errOut: cfg.Err}, nil
	}
	format, err := render.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	p, err := render.NewPipeline(format, cfg.Width, cfg.Style)
	if err != nil {
		return nil, err
	}
	return &renderedFormatter{out: cfg.Out, errOut: cfg.Err, pipeline: p, cites: cfg.Citations}, nil
}

func finalContent(ev stream.Event) string {
	if ev.Message != nil {
		return ev.Message.Content
	}
	return ev.Content
}

func outcomeError(ev stream.Event) string {
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return ""
}

// textFormatter prints deltas as they arrive.
type textFormatter struct {
	out, errOut io.Writer
	printed     strings.Builder
}

func (f *textFormatter) text(s string) {
	f.printed.WriteString(s)
	fmt.Fprint(f.out, s)
}

func (f *textFormatter) created(string) {}

func (f *textFormatter) toolCall(json.RawMessage) {
	fmt.Fprintln(f.errOut, "[tool call]")
}

func (f *textFormatter) end(ev stream.Event) {
	// Text added at the terminal signal (e.g. the cancel marker) never
	// arrived as a delta.
	if rest, ok := strings.CutPrefix(finalContent(ev), f.printed.String()); ok {
		fmt.Fprint(f.out, rest)
	}
	fmt.Fprintln(f.out)
	if msg := outcomeError(ev); msg != "" {
		fmt.Fprintf(f.errOut, "error: %s\n", msg)
	}
}

// renderedFormatter renders the final message through the markdown pipeline.
type renderedFormatter struct {
	out, errOut io.Writer
	pipeline    *render.Pipeline
	cites       []citation.Citation
}

func (f *renderedFormatter) text(string)              {}
func (f *renderedFormatter) created(string)           {}
func (f *renderedFormatter) toolCall(json.RawMessage) {}

func (f *renderedFormatter) end(ev stream.Event) {
	id := ev.Key
	if ev.Message != nil && ev.Message.ID != "" {
		id = ev.Message.ID
	}
	fmt.Fprintln(f.out, f.pipeline.WriteMessage(id, finalContent(ev), f.cites))
	if msg := outcomeError(ev); msg != "" {
		fmt.Fprintf(f.errOut, "error: %s\n", msg)
	}
}

// jsonFormatter collects all output and writes a single JSON object at the end.
type jsonFormatter struct {
	out            io.Writer
	conversationID string
	toolCalls      []json.RawMessage
}

type jsonOutput struct {
	Text           string            `json:"text"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Outcome        string            `json:"outcome"`
	ToolCalls      []json.RawMessage `json:"tool_calls,omitempty"`
	Error          string            `json:"error,omitempty"`
}

func (f *jsonFormatter) text(string) {}

func (f *jsonFormatter) created(id string) { f.conversationID = id }

func (f *jsonFormatter) toolCall(raw json.RawMessage) {
	if len(raw) > 0 {
		f.toolCalls = append(f.toolCalls, raw)
	}
}

func (f *jsonFormatter) end(ev stream.Event) {
	out := jsonOutput{
		Text:           finalContent(ev),
		ConversationID: f.conversationID,
		Outcome:        ev.Outcome.String(),
		ToolCalls:      f.toolCalls,
		Error:          outcomeError(ev),
	}
	if out.ConversationID == "" {
		out.ConversationID = ev.ConversationID
	}
	data, _ := json.Marshal(out)
	fmt.Fprintln(f.out, string(data))
}

// streamJSONFormatter outputs one JSON line per event.
type streamJSONFormatter struct {
	out io.Writer
}

type streamEvent struct {
	Type           string          `json:"type"`
	Text           string          `json:"text,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func (f *streamJSONFormatter) text(s string) {
	f.write(streamEvent{Type: "text", Text: s})
}

func (f *streamJSONFormatter) created(id string) {
	f.write(streamEvent{Type: "created", ConversationID: id})
}

func (f *streamJSONFormatter) toolCall(raw json.RawMessage) {
	f.write(streamEvent{Type: "tool_call", ToolCalls: raw})
}

func (f *streamJSONFormatter) end(ev stream.Event) {
	f.write(streamEvent{
		Type:           "end",
		Text:           finalContent(ev),
		ConversationID: ev.ConversationID,
		Outcome:        ev.Outcome.String(),
		Error:          outcomeError(ev),
	})
}

func (f *streamJSONFormatter) write(evt streamEvent) {
	data, _ := json.Marshal(evt)
	fmt.Fprintln(f.out, string(data))
}
