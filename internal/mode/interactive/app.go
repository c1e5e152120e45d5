// ABOUTME: Root Bubble Tea model for the interactive chat view
// ABOUTME: Prompt line, the reconciled conversation, and a live reply re-rendered on a tick while streaming

package interactive

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// AppModel is the root model of the interactive view.
type AppModel struct {
	deps Deps
	ctx  context.Context

	input  []rune
	live   string
	status string

	machine        *stream.Machine
	key            string
	conversationID string
	seq            int // slot of the prompt being answered
	streaming      bool
	dirty          bool

	width  int
	height int
}

// NewAppModel creates the root model.
func NewAppModel(ctx context.Context, deps Deps) AppModel {
	if deps.TickInterval <= 0 {
		deps.TickInterval = DefaultTickInterval
	}
	return AppModel{
		deps:           deps,
		ctx:            ctx,
		conversationID: deps.ConversationID,
	}
}

// Init returns nil; the view waits for input.
func (m AppModel) Init() tea.Cmd {
	return nil
}

// Update routes messages to the appropriate handler.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deps.Pipeline.SetWidth(msg.Width)
		m.dirty = m.streaming
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case submittedMsg:
		if msg.err != nil {
			m.streaming = false
			m.status = errorStyle.Render("error: " + msg.err.Error())
			return m, nil
		}
		m.machine = msg.machine
		return m, m.tick()

	case StreamEventMsg:
		return m.handleEvent(msg.Event)

	case tickMsg:
		if m.dirty && m.machine != nil {
			m.live = m.deps.Pipeline.Write(m.machine.Flush(), nil)
			m.dirty = false
		}
		if m.streaming {
			return m, m.tick()
		}
		return m, nil
	}
	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.streaming {
			m.deps.Manager.Cancel(m.key)
			m.status = mutedStyle.Render("cancelling...")
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.streaming {
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		return m.submit()

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case tea.KeySpace:
		m.input = append(m.input, ' ')
		return m, nil

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
		return m, nil
	}
	return m, nil
}

func (m AppModel) submit() (tea.Model, tea.Cmd) {
	prompt := strings.TrimSpace(string(m.input))
	if prompt == "" || m.streaming {
		return m, nil
	}

	req := stream.SubmitRequest{
		ConversationID: m.conversationID,
		Prompt:         prompt,
		Model:          m.deps.Model,
		Provider:       m.deps.Provider,
	}
	m.key = req.StreamKey()
	m.seq = m.deps.View.NextSeq(m.thread())
	req.Seq = m.seq
	m.input = nil
	m.live = ""
	m.status = ""
	m.streaming = true
	m.machine = nil

	mgr, ctx := m.deps.Manager, m.ctx
	return m, func() tea.Msg {
		machine, err := mgr.Submit(ctx, req)
		return submittedMsg{machine: machine, err: err}
	}
}

func (m AppModel) handleEvent(ev stream.Event) (tea.Model, tea.Cmd) {
	if ev.Key != m.key {
		return m, nil
	}
	switch ev.Kind {
	case stream.EventContent:
		m.dirty = true

	case stream.EventCreated:
		m.conversationID = ev.ConversationID
		log.Debug("interactive: conversation %s", ev.ConversationID)

	case stream.EventToolCall:
		m.status = mutedStyle.Render("running tool...")

	case stream.EventDone, stream.EventError:
		m.streaming = false
		m.dirty = false
		m.live = ""
		if ev.ConversationID != "" {
			m.conversationID = ev.ConversationID
		}
		switch {
		case ev.Err != nil:
			m.status = errorStyle.Render("error: " + ev.Err.Error())
		case ev.Outcome == stream.OutcomeCancelled:
			m.status = mutedStyle.Render("cancelled")
		default:
			m.status = ""
		}
	}
	return m, nil
}

func (m AppModel) welcome() string {
	s := "pi-chat"
	if m.deps.Version != "" {
		s += " " + m.deps.Version
	}
	if m.deps.Model != "" {
		s += " · " + m.deps.Model
	}
	return s + " · enter to send, ctrl+c to cancel or quit"
}

func (m AppModel) tick() tea.Cmd {
	return tea.Tick(m.deps.TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// thread is the key the conversation is filed under in the view.
func (m AppModel) thread() string {
	if m.conversationID != "" {
		return m.conversationID
	}
	return m.key
}

// View renders the conversation, the live reply and the prompt line.
func (m AppModel) View() string {
	var b strings.Builder
	msgs := m.deps.View.Messages(m.thread())
	if len(msgs) == 0 && !m.streaming {
		b.WriteString(mutedStyle.Render(m.welcome()))
		b.WriteString("\n\n")
	}

	liveShown := false
	for _, msg := range msgs {
		switch {
		case msg.Role == stream.RoleUser:
			b.WriteString(userStyle.Render("you: ") + msg.Content)
		case m.streaming && msg.Pending && msg.Role == stream.RoleAssistant && msg.Seq == m.seq+1:
			b.WriteString(m.liveReply())
			liveShown = true
		case msg.Role == stream.RoleAssistant:
			b.WriteString(m.deps.Pipeline.WriteMessage(msg.ID, msg.Content, msg.Citations))
		default:
			b.WriteString(mutedStyle.Render(string(msg.Role) + ": " + firstLine(msg.Content)))
		}
		b.WriteString("\n\n")
	}
	if m.streaming && !liveShown {
		b.WriteString(m.liveReply())
		b.WriteString("\n\n")
	}

	if m.width > 0 {
		b.WriteString(mutedStyle.Render(strings.Repeat("─", m.width)))
		b.WriteString("\n")
	}
	b.WriteString(promptStyle.Render("> ") + string(m.input))
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}
	return b.String()
}

func (m AppModel) liveReply() string {
	if m.live == "" && (m.machine == nil || m.machine.State().IsWaiting) {
		return mutedStyle.Render("waiting...")
	}
	return m.live
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
