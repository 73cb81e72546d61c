// Package engine abstracts the streaming conversational engine that plays the
// interviewer. Sessions only see a Stream of text/audio events.
package engine

import (
	"context"
	"errors"
)

// Event is one inbound engine event. Audio and Text may both be set.
type Event struct {
	Audio []byte
	Text  string
}

// Stream is an open bidirectional engine connection.
//
// Send may be called concurrently with Receive. Close unblocks a pending
// Receive and is safe to call more than once.
type Stream interface {
	Send(ctx context.Context, text string, endOfTurn bool) error
	Receive(ctx context.Context) (Event, error)
	Close() error
}

// Dialer opens engine streams.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Stream, error)

func (f DialerFunc) Dial(ctx context.Context) (Stream, error) { return f(ctx) }

var ErrStreamClosed = errors.New("engine: stream closed")
