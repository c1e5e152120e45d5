// ABOUTME: Error types surfaced by the stream pipeline
// ABOUTME: Transport failures, malformed records, provider-reported errors, cancellation

package stream

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mauromedda/pi-chat-stream/pkg/transport"
)

var (
	// ErrCancelled marks a stream stopped by the user or a superseding
	// submission.
	ErrCancelled = errors.New("stream cancelled")
	// ErrBusy is returned by Submit while a stream is in flight.
	ErrBusy = errors.New("stream already in flight")
)

// TransportError is a failure reading the stream or reaching the backend.
type TransportError = transport.Error

// ParseError reports a record whose payload could not be decoded. The record
// is skipped and the stream continues.
type ParseError struct {
	Record string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing stream record %q: %v", truncate(e.Record, 120), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderError is an error reported in-band by the model provider.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return "provider error"
	}
	return "provider error: " + e.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
