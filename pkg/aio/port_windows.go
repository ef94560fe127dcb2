//go:build windows

package aio

import (
	"os"
	"sync"
	"unsafe"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/windows"
)

type overlapped = windows.Overlapped

type iocpPort struct {
	fd      windows.Handle
	closing sync.Once
	closed  chan struct{}
}

// OpenPort creates a native I/O completion port.
func OpenPort() (Port, error) {
	fd, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, errors.New(
			"open completion port failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("iocp_create_io_completion_port", err)),
		)
	}
	return &iocpPort{fd: fd, closed: make(chan struct{})}, nil
}

func (p *iocpPort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *iocpPort) Post(buf *Buffer, qty uint32) error {
	if p.isClosed() {
		return ErrPortClosed
	}
	var ov *windows.Overlapped
	if buf != nil {
		ov = &buf.overlapped
	}
	if err := windows.PostQueuedCompletionStatus(p.fd, qty, 0, ov); err != nil {
		if p.isClosed() {
			return ErrPortClosed
		}
		return os.NewSyscallError("iocp_post_queued_completion_status", err)
	}
	return nil
}

func (p *iocpPort) Wait() (buf *Buffer, qty uint32, err error) {
	var (
		key uintptr
		ov  *windows.Overlapped
	)
	waitErr := windows.GetQueuedCompletionStatus(p.fd, &qty, &key, &ov, windows.INFINITE)
	if ov == nil {
		if waitErr != nil {
			if p.isClosed() {
				err = ErrPortClosed
				return
			}
			err = errors.From(ErrUnexpectedCompletion, errors.WithWrap(waitErr))
		}
		return
	}
	buf = (*Buffer)(unsafe.Pointer(ov))
	if waitErr != nil {
		err = errors.From(ErrUnexpectedCompletion, errors.WithWrap(waitErr))
	}
	return
}

func (p *iocpPort) Close() error {
	var err error
	p.closing.Do(func() {
		close(p.closed)
		if closeErr := windows.CloseHandle(p.fd); closeErr != nil {
			err = os.NewSyscallError("close_handle", closeErr)
		}
	})
	return err
}
