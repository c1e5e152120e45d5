// ABOUTME: Pull loop feeding transport fragments through the classifier into a machine
// ABOUTME: Each fragment is fully applied before the next read; EOF without a sentinel counts as done

package stream

import (
	"context"
	"io"

	"github.com/mauromedda/pi-chat-stream/internal/log"
	"github.com/mauromedda/pi-chat-stream/pkg/transport"
)

type consumeConfig struct {
	readerOpts     []transport.ReaderOption
	classifierOpts []ClassifierOption
}

// ConsumeOption configures Consume.
type ConsumeOption func(*consumeConfig)

// WithReadSize sets the transport read size.
func WithReadSize(n int) ConsumeOption {
	return func(c *consumeConfig) {
		c.readerOpts = append(c.readerOpts, transport.WithReadSize(n))
	}
}

// WithClassifierOptions passes options to the stream's Classifier.
func WithClassifierOptions(opts ...ClassifierOption) ConsumeOption {
	return func(c *consumeConfig) {
		c.classifierOpts = append(c.classifierOpts, opts...)
	}
}

// Consume reads src until the machine reaches a terminal signal, the source
// ends, or ctx is cancelled. The machine must have been submitted.
//
// It returns ErrCancelled on cancellation, the transport error on read
// failure, the provider error when the backend reported one, and nil
// otherwise. In every case the machine ends idle.
func Consume(ctx context.Context, src io.Reader, m *Machine, opts ...ConsumeOption) error {
	var cfg consumeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := transport.NewReader(ctx, src, cfg.readerOpts...)
	defer r.Close()
	c := NewClassifier(cfg.classifierOpts...)

	for m.Active() && r.Scan() {
		for _, ch := range c.Classify(r.Fragment()) {
			m.Apply(ch)
		}
	}

	switch {
	case !m.Active():
		// Terminal signal seen.
	case r.Cancelled():
		m.Fail(ErrCancelled)
		return ErrCancelled
	case r.Err() != nil:
		err := r.Err()
		m.Fail(err)
		return err
	default:
		log.Debug("stream %s: source ended without a terminal signal", m.Key())
		m.Apply(Chunk{Status: StatusDone})
	}

	if m.Outcome() == PhaseCancelled {
		return ErrCancelled
	}
	return m.Err()
}
