//go:build !windows

package aio

import (
	"sync"

	"github.com/eapache/queue"
)

type overlapped struct{}

type completion struct {
	buf *Buffer
	qty uint32
}

type queuePort struct {
	mu     sync.Mutex
	cond   sync.Cond
	items  *queue.Queue
	closed bool
}

// OpenPort opens the emulated completion port.
func OpenPort() (Port, error) {
	p := &queuePort{
		items: queue.New(),
	}
	p.cond.L = &p.mu
	return p, nil
}

func (p *queuePort) Post(buf *Buffer, qty uint32) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	p.items.Add(completion{buf: buf, qty: qty})
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

func (p *queuePort) Wait() (buf *Buffer, qty uint32, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.items.Length() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		err = ErrPortClosed
		return
	}
	c := p.items.Remove().(completion)
	buf, qty = c.buf, c.qty
	return
}

func (p *queuePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}
