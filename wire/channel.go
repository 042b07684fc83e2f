package wire

import (
	"errors"
	"sync"
)

// Channel is one endpoint of a bidirectional string-message channel.
//
// Send delivers one message to the other side. OnReceive installs the function
// called for every inbound message; installing a new handler replaces the
// previous one. Implementations must be safe for concurrent Send calls.
type Channel interface {
	Send(message string) error
	OnReceive(handler func(message string))
}

// ErrChannelClosed is returned by Send on a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// PipeEnd is one side of an in-memory channel created by Pipe.
type PipeEnd struct {
	peer *PipeEnd

	mu      sync.RWMutex
	handler func(string)
	closed  bool
	queue   chan string
	done    chan struct{}
}

// Pipe returns two connected in-memory channel ends. Messages sent on one end
// are delivered, in order, to the other end's handler on a dedicated goroutine,
// so Send never blocks on the receiver's handler.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer, b.peer = b, a
	go a.deliver()
	go b.deliver()
	return a, b
}

func newPipeEnd() *PipeEnd {
	return &PipeEnd{
		queue: make(chan string, 64),
		done:  make(chan struct{}),
	}
}

// Send queues message for delivery to the peer.
func (p *PipeEnd) Send(message string) error {
	peer := p.peer
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrChannelClosed
	}
	select {
	case <-peer.done:
		return ErrChannelClosed
	default:
	}
	select {
	case peer.queue <- message:
		return nil
	case <-peer.done:
		return ErrChannelClosed
	case <-p.done:
		return ErrChannelClosed
	}
}

// OnReceive installs the inbound message handler.
func (p *PipeEnd) OnReceive(handler func(string)) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

// Close closes this end. Messages still queued for it are dropped.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return nil
}

func (p *PipeEnd) deliver() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			p.mu.RLock()
			h := p.handler
			p.mu.RUnlock()
			if h != nil {
				h(msg)
			}
		}
	}
}
