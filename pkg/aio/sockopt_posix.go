//go:build !windows

package aio

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func getsockopt(sc syscall.Conn, opt sockopt) (v int, err error) {
	level, name := unix.SOL_SOCKET, 0
	switch opt {
	case optNoDelay:
		level, name = unix.IPPROTO_TCP, unix.TCP_NODELAY
	case optKeepAlive:
		name = unix.SO_KEEPALIVE
	case optSndBuf:
		name = unix.SO_SNDBUF
	case optRcvBuf:
		name = unix.SO_RCVBUF
	}
	raw, rawErr := sc.SyscallConn()
	if rawErr != nil {
		return 0, rawErr
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		v, err = unix.GetsockoptInt(int(fd), level, name)
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if err != nil {
		err = os.NewSyscallError("getsockopt", err)
	}
	return
}
