// ABOUTME: Incremental stream reader yielding UTF-8 text fragments cut at record boundaries
// ABOUTME: Buffers partial trailing records across reads; context cancellation closes the source

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// MaxRecordSize bounds a single newline-terminated record.
	MaxRecordSize = 1024 * 1024
	// DefaultReadSize is the size of each read from the source.
	DefaultReadSize = 32 * 1024
)

// Reader yields decoded text fragments from a byte stream. Each fragment
// ends at a newline, so no record is ever split across fragments; a final
// unterminated record is returned at EOF.
//
// Use it like bufio.Scanner:
//
//	r := transport.NewReader(ctx, body)
//	for r.Scan() {
//		handle(r.Fragment())
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	ctx     context.Context
	src     io.Reader
	raw     io.Reader
	buf     []byte
	pending []byte

	frag      string
	err       error
	deferred  error
	done      bool
	cancelled bool
	stop      func() bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReadSize sets the size of each read. Small sizes are useful for
// exercising fragment boundaries.
func WithReadSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.buf = make([]byte, n)
		}
	}
}

// NewReader returns a Reader over src. Cancelling ctx stops the reader; when
// src is an io.Closer it is closed so a blocked read returns.
func NewReader(ctx context.Context, src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		ctx: ctx,
		raw: src,
		src: transform.NewReader(src, unicode.UTF8.NewDecoder()),
		buf: make([]byte, DefaultReadSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if c, ok := src.(io.Closer); ok {
		r.stop = context.AfterFunc(ctx, func() { _ = c.Close() })
	}
	return r
}

// Scan advances to the next fragment. It returns false when the stream ends,
// fails, or is cancelled.
func (r *Reader) Scan() bool {
	r.frag = ""
	if r.deferred != nil {
		r.fail(r.deferred)
		return false
	}
	for !r.done {
		if r.ctx.Err() != nil {
			r.cancel()
			return false
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.buf[:n]...)
			if i := bytes.LastIndexByte(r.pending, '\n'); i >= 0 {
				r.frag = string(r.pending[:i+1])
				r.pending = append(r.pending[:0], r.pending[i+1:]...)
				if len(r.pending) > MaxRecordSize {
					r.deferred = ErrRecordTooLarge
				}
				return true
			}
			if len(r.pending) > MaxRecordSize {
				r.fail(ErrRecordTooLarge)
				return false
			}
		}

		if err != nil {
			if r.ctx.Err() != nil {
				r.cancel()
				return false
			}
			if errors.Is(err, io.EOF) {
				r.finish()
				if len(r.pending) > 0 {
					r.frag = string(r.pending)
					r.pending = nil
					return true
				}
				return false
			}
			r.fail(err)
			return false
		}
	}
	return false
}

// Fragment returns the fragment produced by the last successful Scan.
func (r *Reader) Fragment() string { return r.frag }

// Err returns the first non-EOF, non-cancellation error. It is nil after a
// clean end of stream or a cancellation.
func (r *Reader) Err() error { return r.err }

// Cancelled reports whether reading stopped because the context was
// cancelled.
func (r *Reader) Cancelled() bool { return r.cancelled }

// Close releases the cancellation hook and closes the source if it is an
// io.Closer.
func (r *Reader) Close() error {
	r.finish()
	if c, ok := r.raw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Reader) finish() {
	r.done = true
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

func (r *Reader) cancel() {
	r.finish()
	r.cancelled = true
	r.pending = nil
}

func (r *Reader) fail(err error) {
	r.finish()
	r.err = &Error{Op: "read", Err: err}
}
