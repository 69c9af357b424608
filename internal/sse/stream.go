package sse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("sse: stream closed")

// ErrInvalidJSON is returned when a single-document response is not JSON.
var ErrInvalidJSON = errors.New("sse: response is not valid JSON")

// State indicates the current state of a Stream.
type State int

const (
	StateNew       State = iota // Before Next() is ever called.
	StateStreaming              // Mid-stream, receiving deltas.
	StateComplete               // Sentinel seen or transport ended.
	StateError                  // Read failed or the context was canceled.
	StateClosed                 // Close() called before a terminal state.
)

// Stream is a lazy, finite, non-restartable sequence of Deltas read from an
// event-stream body. Next returns io.EOF once the sentinel frame is seen or
// the body ends, whichever comes first. The context is checked before every
// read.
type Stream struct {
	ctx   context.Context
	r     io.Reader
	dec   *Decoder
	buf   []byte
	queue []Delta
	state State
	err   error // terminal error, reported after queued deltas
	eof   bool
}

// NewStream wraps r. If r is an io.Closer, Close closes it.
func NewStream(ctx context.Context, r io.Reader, opts ...DecoderOption) *Stream {
	return &Stream{
		ctx:   ctx,
		r:     r,
		dec:   NewDecoder(opts...),
		buf:   make([]byte, 32*1024),
		state: StateNew,
	}
}

// Next returns the next Delta.
func (s *Stream) Next() (Delta, error) {
	for {
		if len(s.queue) > 0 {
			d := s.queue[0]
			s.queue = s.queue[1:]
			return d, nil
		}

		switch s.state {
		case StateComplete:
			return Delta{}, io.EOF
		case StateError:
			return Delta{}, s.err
		case StateClosed:
			return Delta{}, ErrStreamClosed
		}

		if s.eof || s.dec.Done() {
			s.state = StateComplete
			continue
		}
		if s.err != nil {
			s.state = StateError
			continue
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.state = StateError
			continue
		}

		s.state = StateStreaming
		s.read()
	}
}

// read pulls one chunk from the body into the queue.
func (s *Stream) read() {
	n, err := s.r.Read(s.buf)
	if n > 0 {
		s.queue = append(s.queue, s.dec.Feed(s.buf[:n])...)
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.queue = append(s.queue, s.dec.Flush()...)
		s.eof = true
	case s.ctx.Err() != nil:
		s.err = s.ctx.Err()
	default:
		s.err = fmt.Errorf("sse: read: %w", err)
	}
}

// State returns the current stream state.
func (s *Stream) State() State {
	return s.state
}

// Terminated reports whether the sentinel frame ended the stream.
func (s *Stream) Terminated() bool {
	return s.dec.Done()
}

// Close stops the stream and closes the underlying reader when it is closable.
func (s *Stream) Close() error {
	if s.state != StateComplete && s.state != StateError {
		s.state = StateClosed
	}
	s.queue = nil
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DecodeMessage reads the assistant text of a non-streaming completion.
// A missing message content yields an empty string.
func DecodeMessage(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrInvalidJSON
	}
	return gjson.GetBytes(body, "choices.0.message.content").String(), nil
}
