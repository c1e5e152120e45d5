// ABOUTME: Tests for the fragment reader: record boundaries, UTF-8 reassembly, size limit
// ABOUTME: Covers cancellation of blocked reads via io.Pipe and non-EOF read failures

package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for r.Scan() {
		out = append(out, r.Fragment())
	}
	return out
}

func TestReaderBuffersPartialRecords(t *testing.T) {
	t.Parallel()

	src := &chunkReader{chunks: []string{"data: a\nda", "ta: b\n"}}
	got := collect(t, NewReader(context.Background(), src))

	want := []string{"data: a\n", "data: b\n"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("fragments = %q, want %q", got, want)
	}
}

func TestReaderReassemblesSplitRunes(t *testing.T) {
	t.Parallel()

	src := &chunkReader{chunks: []string{"data: caf\xc3", "\xa9\n"}}
	got := collect(t, NewReader(context.Background(), src))

	if len(got) != 1 || got[0] != "data: café\n" {
		t.Errorf("fragments = %q, want [\"data: café\\n\"]", got)
	}
}

func TestReaderReplacesInvalidUTF8(t *testing.T) {
	t.Parallel()

	got := collect(t, NewReader(context.Background(), strings.NewReader("a\xffb\n")))
	if len(got) != 1 || got[0] != "a�b\n" {
		t.Errorf("fragments = %q, want replacement character", got)
	}
}

func TestReaderReturnsTrailingRemainder(t *testing.T) {
	t.Parallel()

	r := NewReader(context.Background(), strings.NewReader("a\nb"))
	got := collect(t, r)

	if strings.Join(got, "|") != "a\n|b" {
		t.Errorf("fragments = %q, want [a\\n b]", got)
	}
	if r.Err() != nil || r.Cancelled() {
		t.Errorf("clean EOF: err=%v cancelled=%v", r.Err(), r.Cancelled())
	}
}

func TestReaderSmallReadsKeepRecordsWhole(t *testing.T) {
	t.Parallel()

	input := "data: {\"content\":\"héllo\"}\n\ndata: {\"content\":\"wörld\"}\ndata: [DONE]\n"
	got := collect(t, NewReader(context.Background(), strings.NewReader(input), WithReadSize(1)))

	if strings.Join(got, "") != input {
		t.Errorf("joined fragments = %q, want %q", strings.Join(got, ""), input)
	}
	for _, f := range got {
		if !strings.HasSuffix(f, "\n") {
			t.Errorf("fragment %q does not end at a record boundary", f)
		}
	}
}

func TestReaderRecordTooLarge(t *testing.T) {
	t.Parallel()

	r := NewReader(context.Background(), strings.NewReader(strings.Repeat("x", MaxRecordSize+10)))
	if r.Scan() {
		t.Fatal("Scan() = true, want false for oversized record")
	}
	if !errors.Is(r.Err(), ErrRecordTooLarge) {
		t.Errorf("Err() = %v, want ErrRecordTooLarge", r.Err())
	}
	var te *Error
	if !errors.As(r.Err(), &te) {
		t.Errorf("Err() = %T, want *Error", r.Err())
	}
}

func TestReaderCancelUnblocksRead(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(ctx, pr)

	go func() { _, _ = pw.Write([]byte("data: a\n")) }()

	if !r.Scan() || r.Fragment() != "data: a\n" {
		t.Fatalf("first Scan: fragment %q", r.Fragment())
	}

	cancel()
	if r.Scan() {
		t.Fatal("Scan() after cancel = true, want false")
	}
	if !r.Cancelled() {
		t.Error("Cancelled() = false, want true")
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil on cancellation", r.Err())
	}
}

func TestReaderReportsReadErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	r := NewReader(context.Background(), iotest.ErrReader(boom))
	if r.Scan() {
		t.Fatal("Scan() = true, want false")
	}

	var te *Error
	if !errors.As(r.Err(), &te) {
		t.Fatalf("Err() = %T, want *Error", r.Err())
	}
	if !errors.Is(r.Err(), boom) {
		t.Errorf("Err() = %v, want to wrap %v", r.Err(), boom)
	}
	if r.Cancelled() {
		t.Error("Cancelled() = true for a read failure")
	}
}
