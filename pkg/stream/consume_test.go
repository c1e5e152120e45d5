// ABOUTME: End-to-end tests of the pull loop over in-memory and piped stream bodies
// ABOUTME: Checks fragment-size invariance, cancellation, transport failures and EOF handling

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sse(records ...string) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("data: ")
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	return b.String()
}

func submitted(t *testing.T, opts ...MachineOption) *Machine {
	t.Helper()
	m := NewMachine("k", opts...)
	_, err := m.Submit(SubmitRequest{Key: "k", Prompt: "hi"})
	require.NoError(t, err)
	return m
}

func TestConsume_DeltasThenSentinel(t *testing.T) {
	t.Parallel()

	body := sse(`{"delta":{"content":"Hel"}}`, `{"delta":{"content":"lo"}}`, "[DONE]")
	m := submitted(t)

	require.NoError(t, Consume(context.Background(), strings.NewReader(body), m))
	assert.Equal(t, "Hello", m.State().DisplayedContent)
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Equal(t, PhaseDone, m.Outcome())
}

func TestConsume_BackendCancellation(t *testing.T) {
	t.Parallel()

	body := sse(
		`{"status":"waiting"}`,
		`{"status":"generating"}`,
		`{"delta":{"content":"Partial answer"}}`,
		`{"status":"cancelled","content":" [cancelled]"}`,
	)
	m := submitted(t)

	err := Consume(context.Background(), strings.NewReader(body), m)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, strings.HasSuffix(m.State().DisplayedContent, " [cancelled]"))
	assert.Equal(t, "Partial answer [cancelled]", m.State().DisplayedContent)
	assert.Equal(t, PhaseCancelled, m.Outcome())
	assert.Equal(t, PhaseIdle, m.Phase())
}

func TestConsume_FragmentSizeInvariance(t *testing.T) {
	t.Parallel()

	body := sse(
		`{"status":"created","conversationId":"c-1"}`,
		`{"delta":{"content":"Grüße, "}}`,
		`{"delta":{"content":"世界 🌍"}}`,
		`{"content":" fin"}`,
		"[DONE]",
	)

	var want string
	for _, size := range []int{1, 2, 3, 7, 64, 4096} {
		m := submitted(t)
		require.NoError(t, Consume(context.Background(), strings.NewReader(body), m, WithReadSize(size)))
		got := m.State().DisplayedContent
		if want == "" {
			want = got
		}
		assert.Equal(t, "Grüße, 世界 🌍 fin", got, "read size %d", size)
		assert.Equal(t, "c-1", m.ConversationID())
	}

	m := submitted(t)
	require.NoError(t, Consume(context.Background(), iotest.OneByteReader(strings.NewReader(body)), m))
	assert.Equal(t, want, m.State().DisplayedContent)
}

func TestConsume_EOFWithoutSentinelIsDone(t *testing.T) {
	t.Parallel()

	m := submitted(t)
	body := "data: {\"content\":\"a\"}\n\ndata: {\"content\":\"b\"}"
	require.NoError(t, Consume(context.Background(), strings.NewReader(body), m))
	assert.Equal(t, "ab", m.State().DisplayedContent)
	assert.Equal(t, PhaseDone, m.Outcome())
}

func TestConsume_StopsAtSentinel(t *testing.T) {
	t.Parallel()

	m := submitted(t)
	body := sse(`{"content":"a"}`, "[DONE]", `{"content":"ignored"}`)
	require.NoError(t, Consume(context.Background(), strings.NewReader(body), m))
	assert.Equal(t, "a", m.State().DisplayedContent)
}

func TestConsume_SkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	var errs int
	m := submitted(t)
	body := sse(`{"content":"a"}`, `{"content":`, `{"content":"b"}`, "[DONE]")
	err := Consume(context.Background(), strings.NewReader(body), m,
		WithClassifierOptions(WithParseErrorHandler(func(*ParseError) { errs++ })))
	require.NoError(t, err)
	assert.Equal(t, "ab", m.State().DisplayedContent)
	assert.Equal(t, 1, errs)
}

func TestConsume_ProviderError(t *testing.T) {
	t.Parallel()

	m := submitted(t)
	body := sse(`{"content":"a"}`, `{"status":"error","error":{"message":"model overloaded"}}`, `{"content":"b"}`)
	err := Consume(context.Background(), strings.NewReader(body), m)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "model overloaded", pe.Message)
	assert.Equal(t, "a", m.State().DisplayedContent)
}

func TestConsume_ReadFailure(t *testing.T) {
	t.Parallel()

	m := submitted(t)
	src := io.MultiReader(
		strings.NewReader(sse(`{"content":"before"}`)),
		iotest.ErrReader(errors.New("connection reset")),
	)
	err := Consume(context.Background(), src, m)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Op)
	assert.Equal(t, PhaseErrored, m.Outcome())
	assert.Equal(t, "before", m.State().DisplayedContent)
	assert.False(t, m.State().IsStreaming)
}

func TestConsume_ContextCancelKeepsContent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	d := NewDispatcher()
	d.Subscribe(func(Event) { cancel() }, EventContent)
	m := submitted(t, WithDispatcher(d))

	go func() {
		_, _ = pw.Write([]byte(sse(`{"content":"partial"}`)))
	}()

	err := Consume(ctx, pr, m)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "partial"+DefaultCancelMarker, m.State().DisplayedContent)
	assert.Equal(t, PhaseCancelled, m.Outcome())
	assert.Equal(t, PhaseIdle, m.Phase())
}
