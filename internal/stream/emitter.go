package stream

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
)

// ErrClosed is returned by Write once the emitter is closed or has failed.
var ErrClosed = errors.New("stream closed")

// Emitter writes framed events to a client and flushes after each one. Once
// the client is gone every write becomes a no-op, so producers can keep
// sending without checking.
type Emitter struct {
	mu     sync.Mutex
	w      io.Writer
	flush  func() error
	enc    Encoder
	closed bool
	err    error
	sent   int
	logger *zap.Logger
}

// NewEmitter wraps w. When w is an http.ResponseWriter (or anything with a
// Flush method) each frame is flushed immediately.
func NewEmitter(w io.Writer, enc Encoder, logger *zap.Logger) *Emitter {
	if enc == nil {
		enc = SSEEncoder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{w: w, flush: flusherFor(w), enc: enc, logger: logger}
}

func flusherFor(w io.Writer) func() error {
	switch f := w.(type) {
	case http.ResponseWriter:
		rc := http.NewResponseController(f)
		return rc.Flush
	case interface{ Flush() error }:
		return f.Flush
	case http.Flusher:
		return func() error {
			f.Flush()
			return nil
		}
	default:
		return nil
	}
}

// Write frames and flushes evt. It returns ErrClosed after Close or after a
// previous failure, and the write error the first time one happens.
func (e *Emitter) Write(evt linkcheck.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.err != nil {
		return ErrClosed
	}
	if err := e.enc.Encode(e.w, evt); err != nil {
		return e.fail(err)
	}
	if e.flush != nil {
		if err := e.flush(); err != nil {
			return e.fail(err)
		}
	}
	e.sent++
	return nil
}

func (e *Emitter) fail(err error) error {
	e.err = err
	e.logger.Debug("stream write failed; dropping further events", zap.Error(err))
	return err
}

// Drain writes every event from events until the channel is closed. It
// keeps receiving after a write failure so the producer never blocks, and
// returns the first write error, if any.
func (e *Emitter) Drain(events <-chan linkcheck.Event) error {
	for evt := range events {
		_ = e.Write(evt)
	}
	return e.Err()
}

// Close marks the emitter closed. It does not close the underlying writer.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Err reports the first write failure.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Sent reports how many events were written successfully.
func (e *Emitter) Sent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}
