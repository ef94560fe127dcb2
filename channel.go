package iocp

import (
	"context"

	"github.com/brickingsoft/iocp/pkg/aio"
)

const (
	KindTCP       = "tcp"
	KindTCPServer = "tcp-server"
	KindPipe      = "pipe"
	KindNull      = "null"
)

type (
	Events = aio.Events
	Status = aio.Status
	State  = aio.State
)

const (
	EventReadable = aio.EventReadable
	EventWritable = aio.EventWritable
)

// Handle is a channel opened by Open. It is owned by the Thread whose
// context it was opened with, if any.
type Handle struct {
	ch   *aio.Channel
	kind string
}

// Open
// creates a channel of kind. When ctx carries a Thread the channel is
// attached to it and Watch notifications run on its event loop.
//
// tcp dials WithAddress and waits for the connection unless WithAsyncConnect
// is given. tcp-server listens on WithAddress and needs a Thread: accepted
// connections are handed to WithAcceptHandler there. pipe wraps WithConn.
// null completes nothing by itself.
func Open(ctx context.Context, kind string, options ...ChannelOption) (h *Handle, err error) {
	opts := ChannelOptions{
		Network:     "tcp",
		BufferSize:  DefaultBufferSize,
		DialTimeout: DefaultDialTimeout,
		Backlog:     1,
	}
	for _, option := range options {
		if err = option(&opts); err != nil {
			err = newOpenError("apply option failed", err)
			return
		}
	}
	table, threaded := aio.TableFrom(ctx)

	driver := opts.Driver
	if driver == nil {
		switch kind {
		case KindTCP:
			if opts.Address == "" {
				err = newOpenError("open tcp channel failed", ErrEmptyAddress)
				return
			}
			driver = aio.NewTCPDriver(opts.Network, opts.Address, opts.DialTimeout)
		case KindTCPServer:
			if !threaded {
				err = newOpenError("open tcp-server channel failed", ErrNoThread)
				return
			}
			driver = aio.NewListenerDriver(opts.Network, opts.Address)
		case KindPipe:
			if opts.Conn == nil {
				err = newOpenError("open pipe channel failed", ErrNilConn)
				return
			}
			driver = aio.NewPipeDriver(opts.Conn)
		case KindNull:
			driver = aio.NewNullDriver(opts.Backlog)
		default:
			err = newOpenError("open channel failed", ErrUnknownKind)
			return
		}
	}

	if err = Startup(); err != nil {
		err = newOpenError("open channel failed", err)
		return
	}
	ch, chErr := aio.NewChannel(nil, driver, aio.ChannelOptions{
		Blocking:   opts.Blocking,
		BufferSize: opts.BufferSize,
		Logger:     opts.Logger,
	})
	if chErr != nil {
		err = newOpenError("open channel failed", chErr)
		return
	}
	if threaded {
		ch.Lock()
		table.Attach(ch)
		ch.Unlock()
	}
	h = &Handle{ch: ch, kind: kind}

	switch kind {
	case KindTCP:
		if err = ch.Connect(!opts.AsyncConnect); err != nil {
			_ = ch.Close()
			h = nil
			err = newOpenError("connect failed", err)
			return
		}
	case KindTCPServer:
		onAccept := opts.OnAccept
		if err = ch.Accept(func(accepted *aio.Channel) {
			if onAccept == nil {
				_ = accepted.Close()
				return
			}
			onAccept(&Handle{ch: accepted, kind: KindTCP})
		}); err != nil {
			_ = ch.Close()
			h = nil
			err = newOpenError("accept failed", err)
			return
		}
	}
	ch.Logger().Debug().Str("kind", kind).Uint64("channel", ch.ID()).Log("channel opened")
	return
}

func (h *Handle) Kind() string {
	return h.kind
}

// Channel returns the engine channel behind h.
func (h *Handle) Channel() *aio.Channel {
	return h.ch
}

// Read
// returns up to max buffered bytes. An empty channel reports ErrWouldBlock
// in non-blocking mode and waits otherwise; io.EOF is sticky.
func (h *Handle) Read(max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultBufferSize
	}
	p := make([]byte, max)
	n, err := h.ch.Read(p)
	return p[:n], err
}

// Write
// submits p. Non-blocking channels accept it whole or report ErrWouldBlock
// while a write is in flight; blocking channels return the bytes written.
func (h *Handle) Write(p []byte) (int, error) {
	return h.ch.Write(p)
}

// Close
// cancels outstanding operations, waits for their completions and releases
// the channel. A second Close reports ErrClosed.
func (h *Handle) Close() error {
	return h.ch.Close()
}

func (h *Handle) SetOption(name string, value string) error {
	return h.ch.SetOption(name, value)
}

func (h *Handle) GetOption(name string) (string, error) {
	return h.ch.GetOption(name)
}

// BlockUntilReady
// waits for a pending connect, and a pending write in blocking mode, then
// reports any deferred error.
func (h *Handle) BlockUntilReady() error {
	return h.ch.BlockUntilReady()
}

// Watch
// calls fn on the owning Thread when an event in mask is ready. A zero mask
// stops notifications.
func (h *Handle) Watch(mask Events, fn func(Events)) error {
	return h.ch.Watch(mask, fn)
}

func (h *Handle) Status() Status {
	return h.ch.Status()
}
