// ABOUTME: Optimistic message view merged with authoritative refetches
// ABOUTME: Pending entries are replaced by conversation and ordering slot, never by id equality

package reconcile

import (
	"sort"
	"sync"

	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

type thread struct {
	confirmed []stream.Message
	pending   []optimistic
}

// optimistic is a pending message. An assistant reply is live until Settle
// records its final content; refetches never drop a live reply.
type optimistic struct {
	msg  stream.Message
	live bool
}

// View is the local message list per conversation: the last authoritative
// list plus optimistic messages the backend has not confirmed yet.
type View struct {
	mu      sync.Mutex
	threads map[string]*thread
}

// NewView returns an empty View.
func NewView() *View {
	return &View{threads: make(map[string]*thread)}
}

func (v *View) thread(key string) *thread {
	t, ok := v.threads[key]
	if !ok {
		t = &thread{}
		v.threads[key] = t
	}
	return t
}

// AddOptimistic files pending messages under key, which is a conversation
// id or the submission key of a conversation that has none yet.
func (v *View) AddOptimistic(key string, msgs ...stream.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.thread(key)
	for _, m := range msgs {
		m.Pending = true
		t.pending = append(t.pending, optimistic{msg: m, live: m.Role == stream.RoleAssistant})
	}
}

// Settle updates the pending message in key's thread that occupies msg's
// slot, typically with the final content of a finished stream. It reports
// whether such a message was found.
func (v *View) Settle(key string, msg stream.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.threads[key]
	if !ok {
		return false
	}
	for i := range t.pending {
		if t.pending[i].msg.Seq == msg.Seq {
			msg.Pending = true
			msg.ID = t.pending[i].msg.ID
			t.pending[i] = optimistic{msg: msg}
			return true
		}
	}
	return false
}

// Rekey moves everything filed under from to the conversation id to,
// stamping pending messages with the new id.
func (v *View) Rekey(from, to string) {
	if from == to || from == "" || to == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	src, ok := v.threads[from]
	if !ok {
		return
	}
	delete(v.threads, from)

	dst := v.thread(to)
	if len(dst.confirmed) == 0 {
		dst.confirmed = src.confirmed
	}
	for _, p := range src.pending {
		p.msg.ConversationID = to
		dst.pending = append(dst.pending, p)
	}
}

// Replace installs the authoritative message list for a conversation.
// Message i takes slot i. A pending message is dropped once a message with
// its role occupies its slot or a later one; live replies are kept.
func (v *View) Replace(conversationID string, msgs []stream.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t := v.thread(conversationID)

	t.confirmed = make([]stream.Message, len(msgs))
	for i, m := range msgs {
		m.Seq = i
		m.Pending = false
		t.confirmed[i] = m
	}

	kept := t.pending[:0]
	for _, p := range t.pending {
		if p.live || !confirmedFrom(msgs, p.msg.Seq, p.msg.Role) {
			kept = append(kept, p)
		}
	}
	t.pending = kept
}

func confirmedFrom(msgs []stream.Message, seq int, role stream.Role) bool {
	for i := max(seq, 0); i < len(msgs); i++ {
		if msgs[i].Role == role {
			return true
		}
	}
	return false
}

// Messages returns the merged list for key in slot order.
func (v *View) Messages(key string) []stream.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.threads[key]
	if !ok {
		return nil
	}
	out := make([]stream.Message, 0, len(t.confirmed)+len(t.pending))
	out = append(out, t.confirmed...)
	pending := make([]stream.Message, len(t.pending))
	for i, p := range t.pending {
		pending[i] = p.msg
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	return append(out, pending...)
}

// NextSeq returns the ordering slot for the next message under key.
func (v *View) NextSeq(key string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.threads[key]
	if !ok {
		return 0
	}
	next := len(t.confirmed)
	for _, p := range t.pending {
		if p.msg.Seq >= next {
			next = p.msg.Seq + 1
		}
	}
	return next
}

// Pending returns the number of unconfirmed messages under key.
func (v *View) Pending(key string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t, ok := v.threads[key]; ok {
		return len(t.pending)
	}
	return 0
}
