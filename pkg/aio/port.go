package aio

// Port is a completion port: a thread-safe queue of finished overlapped
// operations drained by the dispatcher.
//
// A Post of (nil, 0) is the shutdown sentinel. Wait returns ErrPortClosed
// once the port is closed.
type Port interface {
	Post(buf *Buffer, qty uint32) error
	Wait() (buf *Buffer, qty uint32, err error)
	Close() error
}
