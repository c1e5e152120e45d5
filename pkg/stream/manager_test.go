// ABOUTME: Tests for the stream manager: supersession per key, cancellation and optimistic sink
// ABOUTME: Streams are backed by io.Pipe so tests control when bytes arrive

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type safeRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *safeRecorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *safeRecorder) terminal() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == EventDone || ev.Kind == EventError {
			out = append(out, ev)
		}
	}
	return out
}

// blockingBody never produces data until the stream's context closes it.
func blockingBody(t *testing.T) io.ReadCloser {
	t.Helper()
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	return pr
}

func TestManager_RunsStreamToCompletion(t *testing.T) {
	t.Parallel()

	var subs []Submission
	mgr := NewManager(func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
		assert.Equal(t, "hi", req.Prompt)
		return io.NopCloser(strings.NewReader(sse(`{"content":"hey"}`, "[DONE]"))), nil
	}, WithOptimisticSink(func(s Submission) { subs = append(subs, s) }))

	rec := &safeRecorder{}
	mgr.Dispatcher().Subscribe(rec.add)

	m, err := mgr.Submit(context.Background(), SubmitRequest{ConversationID: "c-1", Prompt: "hi", Seq: 0})
	require.NoError(t, err)
	mgr.Wait()

	assert.Equal(t, "hey", m.State().DisplayedContent)
	require.Len(t, subs, 1)
	assert.Equal(t, "c-1", subs[0].Key)
	assert.Equal(t, 1, subs[0].Assistant.Seq)

	term := rec.terminal()
	require.Len(t, term, 1)
	assert.Equal(t, OutcomeDone, term[0].Outcome)

	_, running := mgr.Active("c-1")
	assert.False(t, running)
}

func TestManager_SupersedesStreamForSameKey(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	mgr := NewManager(func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
		if calls.Add(1) == 1 {
			return blockingBody(t), nil
		}
		return io.NopCloser(strings.NewReader(sse(`{"content":"second"}`, "[DONE]"))), nil
	})
	rec := &safeRecorder{}
	mgr.Dispatcher().Subscribe(rec.add)

	first, err := mgr.Submit(context.Background(), SubmitRequest{Key: "c", Prompt: "one"})
	require.NoError(t, err)
	second, err := mgr.Submit(context.Background(), SubmitRequest{Key: "c", Prompt: "two"})
	require.NoError(t, err)
	mgr.Wait()

	assert.Equal(t, PhaseCancelled, first.Outcome())
	assert.Equal(t, DefaultCancelMarker, first.State().DisplayedContent)
	assert.Equal(t, PhaseDone, second.Outcome())
	assert.Equal(t, "second", second.State().DisplayedContent)

	term := rec.terminal()
	require.Len(t, term, 2)
	assert.Equal(t, OutcomeCancelled, term[0].Outcome)
	assert.Equal(t, OutcomeDone, term[1].Outcome)
}

func TestManager_SupersedesStreamForCreatedConversation(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	var calls atomic.Int32
	mgr := NewManager(func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
		if calls.Add(1) == 1 {
			go func() {
				<-ctx.Done()
				pw.CloseWithError(ctx.Err())
			}()
			return pr, nil
		}
		return io.NopCloser(strings.NewReader(sse(`{"content":"again"}`, "[DONE]"))), nil
	})
	created := make(chan struct{})
	mgr.Dispatcher().Subscribe(func(Event) { close(created) }, EventCreated)

	first, err := mgr.Submit(context.Background(), SubmitRequest{Prompt: "one"})
	require.NoError(t, err)
	go func() { _, _ = pw.Write([]byte(sse(`{"status":"created","conversationId":"c1"}`))) }()
	<-created

	running, ok := mgr.Active("c1")
	require.True(t, ok)
	assert.Same(t, first, running)

	second, err := mgr.Submit(context.Background(), SubmitRequest{ConversationID: "c1", Prompt: "two"})
	require.NoError(t, err)
	assert.False(t, first.Active())
	assert.Equal(t, PhaseCancelled, first.Outcome())
	_, stale := mgr.Active("new")
	assert.False(t, stale)

	mgr.Wait()
	assert.Equal(t, "again", second.State().DisplayedContent)
	_, running2 := mgr.Active("c1")
	assert.False(t, running2)
}

func TestManager_IndependentKeys(t *testing.T) {
	t.Parallel()

	mgr := NewManager(func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
		return blockingBody(t), nil
	})
	a, err := mgr.Submit(context.Background(), SubmitRequest{Key: "a"})
	require.NoError(t, err)
	b, err := mgr.Submit(context.Background(), SubmitRequest{Key: "b"})
	require.NoError(t, err)

	assert.True(t, a.Active())
	assert.True(t, b.Active())

	assert.True(t, mgr.Cancel("a"))
	assert.False(t, mgr.Cancel("missing"))
	mgr.Close()

	assert.Equal(t, PhaseCancelled, a.Outcome())
	assert.Equal(t, PhaseCancelled, b.Outcome())
}

func TestManager_OpenFailure(t *testing.T) {
	t.Parallel()

	mgr := NewManager(func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
		return nil, &TransportError{Op: "POST /chat", Status: 503, Body: "unavailable"}
	})
	rec := &safeRecorder{}
	mgr.Dispatcher().Subscribe(rec.add, EventError)

	m, err := mgr.Submit(context.Background(), SubmitRequest{Key: "x"})
	require.NoError(t, err)
	mgr.Wait()

	var te *TransportError
	require.True(t, errors.As(m.Err(), &te))
	assert.Equal(t, 503, te.Status)
	require.Len(t, rec.terminal(), 1)
}

func TestManager_AppliesMachineOptions(t *testing.T) {
	t.Parallel()

	mgr := NewManager(func(ctx context.Context, req SubmitRequest) (io.ReadCloser, error) {
		return blockingBody(t), nil
	}, WithMachineOptions(WithCancelMarker(" (stopped)")), WithConsumeOptions(WithReadSize(1)))

	m, err := mgr.Submit(context.Background(), SubmitRequest{Key: "k"})
	require.NoError(t, err)
	mgr.Cancel("k")
	mgr.Wait()
	assert.Equal(t, " (stopped)", m.State().DisplayedContent)
}

func TestDispatcher_FiltersByKind(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var order []string
	unsubAll := d.Subscribe(func(ev Event) { order = append(order, "all:"+ev.Kind.String()) })
	d.Subscribe(func(ev Event) { order = append(order, "done:"+ev.Kind.String()) }, EventDone, EventError)
	assert.Equal(t, 2, d.Subscribers())

	d.Publish(Event{Kind: EventContent})
	d.Publish(Event{Kind: EventDone})
	unsubAll()
	d.Publish(Event{Kind: EventError})

	assert.Equal(t, []string{
		"all:content-chunk",
		"all:stream-done",
		"done:stream-done",
		"done:stream-error",
	}, order)
	assert.Equal(t, 1, d.Subscribers())
}
