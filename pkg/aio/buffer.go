package aio

import (
	"net"
	"strconv"
	"sync/atomic"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/iocp/pkg/bytebuffers"
)

type Operation uint8

const (
	OpRead Operation = iota
	OpWrite
	OpConnect
	OpAccept
)

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpConnect:
		return "connect"
	case OpAccept:
		return "accept"
	default:
		return "op(" + strconv.Itoa(int(op)) + ")"
	}
}

// slot is the direction an operation occupies on its channel.
func (op Operation) slot() int {
	switch op {
	case OpWrite:
		return slotWrite
	case OpConnect:
		return slotConnect
	default:
		return slotRead
	}
}

// Buffer is the unit of overlapped I/O. While in flight it is owned by the
// engine and holds a reference to its channel.
type Buffer struct {
	overlapped overlapped // must stay the first field
	refs       atomic.Int32
	op         Operation
	data       bytebuffers.DataBuffer
	channel    *Channel
	err        error
	conn       net.Conn
}

// NewBuffer allocates a buffer with one reference owned by the caller.
func NewBuffer(op Operation, capacity int) (buf *Buffer, err error) {
	buf = &Buffer{op: op}
	if _, err = buf.data.Init(capacity); err != nil {
		err = errors.From(ErrAllocate, errors.WithWrap(err))
		buf = nil
		return
	}
	buf.refs.Store(1)
	return
}

func (buf *Buffer) Op() Operation {
	return buf.op
}

func (buf *Buffer) Data() *bytebuffers.DataBuffer {
	return &buf.data
}

// Channel returns the channel the buffer is bound to while in flight.
func (buf *Buffer) Channel() *Channel {
	return buf.channel
}

// Err is the result error recorded by the submitter.
func (buf *Buffer) Err() error {
	return buf.err
}

// Conn is the connection produced by a connect or accept.
func (buf *Buffer) Conn() net.Conn {
	return buf.conn
}

func (buf *Buffer) Acquire() {
	buf.refs.Add(1)
}

// Release drops a reference. The last one frees the data storage and drops
// the channel reference if the buffer is still bound. The channel must not
// be locked by the caller in that case.
func (buf *Buffer) Release() {
	n := buf.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		violate("release of freed %s buffer", buf.op)
	}
	buf.data.Fini()
	buf.conn = nil
	if ch := buf.channel; ch != nil {
		buf.channel = nil
		ch.Release()
	}
}

// bind takes a channel reference for the flight. ch must be locked.
func (buf *Buffer) bind(ch *Channel) {
	ch.refs++
	buf.channel = ch
}

// unbind clears the binding without dropping the reference, which the
// caller now owns.
func (buf *Buffer) unbind() *Channel {
	ch := buf.channel
	buf.channel = nil
	return ch
}
