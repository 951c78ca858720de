// Package channel wraps the single bidirectional message channel a session
// runs over. The transport delivers messages in order and without
// channel-level duplication, but it can close mid-flight, so callers never
// assume a sent message arrived.
package channel

import (
	"errors"

	"github.com/mweiss/tagduel/internal/wire"
)

var ErrClosed = errors.New("channel is closed")

type Channel interface {
	// Send transmits one message. Returns ErrClosed once the channel is
	// down; delivery of accepted messages is still not guaranteed.
	Send(env wire.Envelope) error

	// Inbound yields decoded messages in arrival order. It is never closed;
	// readers must also select on Done.
	Inbound() <-chan wire.Envelope

	// Done is closed when the channel shuts down, from either side.
	Done() <-chan struct{}

	IsOpen() bool

	Close() error
}
