// ABOUTME: Stream manager enforcing one in-flight stream per conversation
// ABOUTME: A new submission cancels the previous stream for its key and waits for it to settle

package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/mauromedda/pi-chat-stream/internal/log"
)

// Opener starts the backend request for req and returns the stream body.
type Opener func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error)

type run struct {
	machine *Machine
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager runs streams, at most one per conversation. A run is filed under
// its stream key and, once the backend assigns one, its conversation id.
type Manager struct {
	open        Opener
	dispatcher  *Dispatcher
	machineOpts []MachineOption
	consumeOpts []ConsumeOption
	sink        func(Submission)

	mu     sync.Mutex
	active map[string]*run
	wg     sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerDispatcher publishes every managed machine's events to d.
func WithManagerDispatcher(d *Dispatcher) ManagerOption {
	return func(m *Manager) { m.dispatcher = d }
}

// WithMachineOptions applies opts to every machine the manager creates.
func WithMachineOptions(opts ...MachineOption) ManagerOption {
	return func(m *Manager) { m.machineOpts = append(m.machineOpts, opts...) }
}

// WithConsumeOptions applies opts to every stream's pull loop.
func WithConsumeOptions(opts ...ConsumeOption) ManagerOption {
	return func(m *Manager) { m.consumeOpts = append(m.consumeOpts, opts...) }
}

// WithOptimisticSink receives the optimistic message pair of every
// submission before its stream starts.
func WithOptimisticSink(fn func(Submission)) ManagerOption {
	return func(m *Manager) { m.sink = fn }
}

// NewManager returns a Manager that opens streams with open.
func NewManager(open Opener, opts ...ManagerOption) *Manager {
	m := &Manager{
		open:       open,
		dispatcher: NewDispatcher(),
		active:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dispatcher.Subscribe(m.created, EventCreated)
	return m
}

// created files the run streaming under ev.Key under its new conversation
// id as well.
func (m *Manager) created(ev Event) {
	if ev.ConversationID == "" || ev.ConversationID == ev.Key {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[ev.Key]
	if !ok || r.machine.ConversationID() != ev.ConversationID {
		return
	}
	if other, busy := m.active[ev.ConversationID]; busy && other != r {
		log.Warn("stream %s: conversation %s already has a stream", ev.Key, ev.ConversationID)
		return
	}
	m.active[ev.ConversationID] = r
}

// Dispatcher returns the dispatcher receiving managed events.
func (m *Manager) Dispatcher() *Dispatcher { return m.dispatcher }

// Submit starts a stream for req. Any stream already running for the same
// key or conversation is cancelled and awaited first, so its final events
// are published before the new stream's.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*Machine, error) {
	key := req.StreamKey()
	opts := append([]MachineOption{WithDispatcher(m.dispatcher)}, m.machineOpts...)
	machine := NewMachine(key, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{machine: machine, cancel: cancel, done: make(chan struct{})}

	for {
		m.mu.Lock()
		prev := m.busy(key, req.ConversationID)
		if prev == nil {
			m.active[key] = r
			if req.ConversationID != "" {
				m.active[req.ConversationID] = r
			}
			m.mu.Unlock()
			break
		}
		m.mu.Unlock()

		log.Debug("stream %s: superseding in-flight stream %s", key, prev.machine.Key())
		prev.cancel()
		<-prev.done
	}

	sub, err := machine.Submit(req)
	if err != nil {
		m.release(r)
		cancel()
		close(r.done)
		return nil, err
	}
	if m.sink != nil {
		m.sink(sub)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		defer cancel()
		defer m.release(r)
		m.run(runCtx, req, machine)
	}()
	return machine, nil
}

func (m *Manager) run(ctx context.Context, req SubmitRequest, machine *Machine) {
	body, err := m.open(ctx, req)
	if err != nil {
		log.Warn("stream %s: opening stream: %v", machine.Key(), err)
		machine.Fail(err)
		return
	}
	defer body.Close()

	if err := Consume(ctx, body, machine, m.consumeOpts...); err != nil && !errors.Is(err, ErrCancelled) {
		log.Warn("stream %s: %v", machine.Key(), err)
	}
}

// busy returns the run holding any of keys. Callers hold m.mu.
func (m *Manager) busy(keys ...string) *run {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if r, ok := m.active[k]; ok {
			return r
		}
	}
	return nil
}

func (m *Manager) release(r *run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.active {
		if v == r {
			delete(m.active, k)
		}
	}
}

// Cancel stops the stream running under key. It reports whether one was
// running.
func (m *Manager) Cancel(key string) bool {
	m.mu.Lock()
	r, ok := m.active[key]
	m.mu.Unlock()
	if ok {
		r.cancel()
	}
	return ok
}

// Active returns the machine streaming under key, if any.
func (m *Manager) Active(key string) (*Machine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[key]
	if !ok {
		return nil, false
	}
	return r.machine, true
}

// Wait blocks until every stream started so far has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels all streams and waits for them.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, r := range m.active {
		r.cancel()
	}
	m.mu.Unlock()
	m.Wait()
}
