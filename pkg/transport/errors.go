// ABOUTME: Transport-level error type shared by the stream reader and the backend client
// ABOUTME: Carries the failed operation, an optional HTTP status, and a bounded body excerpt

package transport

import (
	"errors"
	"fmt"
)

// ErrRecordTooLarge is returned when a record exceeds MaxRecordSize without
// a newline.
var ErrRecordTooLarge = errors.New("record exceeds maximum size")

// Error reports a failure to read the stream or talk to the backend.
type Error struct {
	Op     string // e.g. "read", "POST /api/chat/stream"
	Status int    // HTTP status, zero when no response was received
	Body   string // excerpt of the error response body
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": transport failure"
}

func (e *Error) Unwrap() error { return e.Err }
