//go:build windows

package aio

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func getsockopt(sc syscall.Conn, opt sockopt) (v int, err error) {
	level, name := int32(windows.SOL_SOCKET), int32(0)
	switch opt {
	case optNoDelay:
		level, name = windows.IPPROTO_TCP, windows.TCP_NODELAY
	case optKeepAlive:
		name = windows.SO_KEEPALIVE
	case optSndBuf:
		name = windows.SO_SNDBUF
	case optRcvBuf:
		name = windows.SO_RCVBUF
	}
	raw, rawErr := sc.SyscallConn()
	if rawErr != nil {
		return 0, rawErr
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		var value int32
		size := int32(unsafe.Sizeof(value))
		err = windows.Getsockopt(windows.Handle(fd), level, name, (*byte)(unsafe.Pointer(&value)), &size)
		v = int(value)
	})
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if err != nil {
		err = os.NewSyscallError("getsockopt", err)
	}
	return
}
