// ABOUTME: Conversation reconciler reacting to structural stream events
// ABOUTME: Invalidates external caches, navigates to new conversations and refetches authoritative messages

// Package reconcile keeps a local optimistic message view consistent with
// an externally owned conversation store. It listens only to structural
// stream events (conversation created, tool call, stream done), never to
// content deltas.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

// KeyConversations is the cache key of the conversation list.
const KeyConversations = "conversations"

// MessagesKey returns the cache key of a conversation's message list.
func MessagesKey(conversationID string) string {
	return "messages/" + conversationID
}

// Cache drops externally cached state by key.
type Cache interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Navigator moves the UI to a conversation.
type Navigator interface {
	Navigate(conversationID string) error
}

// Store fetches the authoritative messages of a conversation.
type Store interface {
	Messages(ctx context.Context, conversationID string) ([]stream.Message, error)
}

// Reconciler applies structural stream events to its collaborators. Every
// collaborator is optional. Collaborator failures are logged and never
// reach the stream.
type Reconciler struct {
	cache Cache
	nav   Navigator
	store Store
	view  *View

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	wg     sync.WaitGroup

	mu     sync.Mutex
	active string
	seen   map[string]bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCache sets the cache to invalidate.
func WithCache(c Cache) Option { return func(r *Reconciler) { r.cache = c } }

// WithNavigator sets the navigator told about new conversations.
func WithNavigator(n Navigator) Option { return func(r *Reconciler) { r.nav = n } }

// WithStore enables refetching messages after tool calls and finished streams.
func WithStore(s Store) Option { return func(r *Reconciler) { r.store = s } }

// WithView sets the view to reconcile. A new View is created otherwise.
func WithView(v *View) Option { return func(r *Reconciler) { r.view = v } }

// New returns a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{seen: make(map[string]bool)}
	for _, opt := range opts {
		opt(r)
	}
	if r.view == nil {
		r.view = NewView()
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// View returns the reconciled view.
func (r *Reconciler) View() *View { return r.view }

// ActiveConversation returns the conversation id last announced by the
// backend.
func (r *Reconciler) ActiveConversation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Attach subscribes the reconciler to d and returns a function detaching it.
func (r *Reconciler) Attach(d *stream.Dispatcher) func() {
	return d.Subscribe(r.Handle, stream.EventCreated, stream.EventToolCall, stream.EventDone, stream.EventError)
}

// Handle applies one event. Content events are ignored; an error event
// only settles the failed reply, since nothing was stored.
func (r *Reconciler) Handle(ev stream.Event) {
	switch ev.Kind {
	case stream.EventCreated:
		r.created(ev)
	case stream.EventToolCall:
		r.refresh(ev.ConversationID)
	case stream.EventDone:
		if ev.Message != nil {
			r.view.Settle(threadKey(ev), *ev.Message)
		}
		r.refresh(ev.ConversationID)
	case stream.EventError:
		if ev.Message != nil {
			r.view.Settle(threadKey(ev), *ev.Message)
		}
	}
}

func threadKey(ev stream.Event) string {
	if ev.ConversationID != "" {
		return ev.ConversationID
	}
	return ev.Key
}

func (r *Reconciler) created(ev stream.Event) {
	id := ev.ConversationID
	if id == "" {
		return
	}
	r.mu.Lock()
	if r.seen[id] {
		r.mu.Unlock()
		return
	}
	r.seen[id] = true
	r.active = id
	r.mu.Unlock()

	log.Debug("reconcile: conversation %s created for %s", id, ev.Key)
	if r.nav != nil {
		if err := r.nav.Navigate(id); err != nil {
			log.Warn("reconcile: navigating to %s: %v", id, err)
		}
	}
	r.view.Rekey(ev.Key, id)
	r.invalidate(KeyConversations)
}

func (r *Reconciler) refresh(id string) {
	if id == "" {
		r.invalidate(KeyConversations)
		return
	}
	r.invalidate(MessagesKey(id), KeyConversations)
	if r.store == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refetch(id)
	}()
}

// refetch loads id's messages into the view. Concurrent refetches of the
// same conversation share one request.
func (r *Reconciler) refetch(id string) {
	v, err, shared := r.group.Do(id, func() (any, error) {
		return r.store.Messages(r.ctx, id)
	})
	if err != nil {
		log.Warn("reconcile: fetching messages of %s: %v", id, err)
		return
	}
	if shared {
		log.Debug("reconcile: shared refetch of %s", id)
	}
	r.view.Replace(id, v.([]stream.Message))
}

// Load fetches id's authoritative messages into the view and returns the
// slot for the next message. Without a store it returns the view's slot.
func (r *Reconciler) Load(ctx context.Context, id string) (int, error) {
	if r.store == nil || id == "" {
		return r.view.NextSeq(id), nil
	}
	v, err, _ := r.group.Do(id, func() (any, error) {
		return r.store.Messages(ctx, id)
	})
	if err != nil {
		return 0, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	r.view.Replace(id, v.([]stream.Message))
	return r.view.NextSeq(id), nil
}

func (r *Reconciler) invalidate(keys ...string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(r.ctx, keys...); err != nil {
		log.Warn("reconcile: invalidating %v: %v", keys, err)
	}
}

// Wait blocks until in-flight refetches finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight refetches and waits for them.
func (r *Reconciler) Close() {
	r.cancel()
	r.wg.Wait()
}
