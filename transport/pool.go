package transport

import (
	"errors"
	"sync"

	"github.com/udduke/ribbon/wire"
)

// Pool hands out transports to a single server address. A buffered channel
// is the queue: it is goroutine-safe and blocking-on-empty comes for free.
//
// Transports are created lazily up to the size limit; past it, Get blocks
// until another caller returns one.
type Pool struct {
	mu      sync.Mutex
	idle    chan *Transport
	addr    string
	size    int
	created int
	closed  bool
	dial    func(addr string, codec wire.CodecType) (*Transport, error)
	codec   wire.CodecType
}

// NewPool creates an empty pool for addr holding at most size transports.
func NewPool(addr string, size int, codec wire.CodecType) *Pool {
	return &Pool{
		idle:  make(chan *Transport, size),
		addr:  addr,
		size:  size,
		codec: codec,
		dial:  Dial,
	}
}

// Get returns an idle transport, dials a new one while under the limit, or
// blocks until one is put back.
func (p *Pool) Get() (*Transport, error) {
	select {
	case t, ok := <-p.idle:
		if !ok {
			return nil, errPoolClosed
		}
		return t, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()
		t, err := p.dial(p.addr, p.codec)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}
		return t, nil
	}
	p.mu.Unlock()

	t, ok := <-p.idle
	if !ok {
		return nil, errPoolClosed
	}
	return t, nil
}

// Put returns a transport for reuse. Pass broken=true after a transport
// error; the transport is closed and its slot freed for a fresh dial.
func (p *Pool) Put(t *Transport, broken bool) {
	if broken {
		t.Close()
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		t.Close()
		return
	}
	p.idle <- t
}

// Close shuts the pool and every idle transport. Transports currently on
// loan are closed by their holder's Put.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.idle)
	for t := range p.idle {
		t.Close()
	}
	return nil
}

var errPoolClosed = errors.New("transport: pool closed")
