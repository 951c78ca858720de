package channel

import (
	"sync"

	"github.com/mweiss/tagduel/internal/wire"
)

// Pipe returns two connected in-process channel ends. Closing either end
// closes the pair, mirroring a real transport where one side tearing down is
// observed by both. Used by session tests in place of a network transport.
func Pipe() (*PipeEnd, *PipeEnd) {
	done := make(chan struct{})
	once := &sync.Once{}
	ab := make(chan wire.Envelope, 64)
	ba := make(chan wire.Envelope, 64)
	a := &PipeEnd{out: ab, inbound: ba, done: done, once: once}
	b := &PipeEnd{out: ba, inbound: ab, done: done, once: once}
	return a, b
}

type PipeEnd struct {
	out     chan wire.Envelope
	inbound chan wire.Envelope
	done    chan struct{}
	once    *sync.Once
}

func (p *PipeEnd) Send(env wire.Envelope) error {
	select {
	case <-p.done:
		return ErrClosed
	case p.out <- env:
		return nil
	}
}

func (p *PipeEnd) Inbound() <-chan wire.Envelope { return p.inbound }

func (p *PipeEnd) Done() <-chan struct{} { return p.done }

func (p *PipeEnd) IsOpen() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
