package iocp

import (
	"errors"
	"net"

	berrors "github.com/brickingsoft/errors"
	"github.com/brickingsoft/iocp/pkg/aio"
)

var (
	ErrClosed           = aio.ErrClosed
	ErrBusy             = aio.ErrBusy
	ErrWouldBlock       = aio.ErrWouldBlock
	ErrAllocate         = aio.ErrAllocate
	ErrInitialization   = aio.ErrInitialization
	ErrIO               = aio.ErrIO
	ErrNoThread         = aio.ErrNoThread
	ErrInvalidOption    = aio.ErrInvalidOption
	ErrUnknownKind      = berrors.Define("unknown channel kind")
	ErrNetworkUnmatched = berrors.Define("network is not matched")
	ErrNilConn          = berrors.Define("pipe channel requires a conn")
	ErrEmptyAddress     = berrors.Define("channel requires an address")
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "iocp"
	errMetaOpKey  = "op"
	errMetaOpOpen = "open"
)

func newOpenError(msg string, cause error) error {
	return berrors.New(
		msg,
		berrors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		berrors.WithMeta(errMetaOpKey, errMetaOpOpen),
		berrors.WithWrap(cause),
	)
}

func unwrapOpError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Err
	}
	return err
}

func IsClosed(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrClosed)
}

func IsBusy(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrBusy)
}

func IsWouldBlock(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrWouldBlock)
}

func IsAllocate(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrAllocate)
}

func IsInitialization(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrInitialization)
}

func IsIO(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrIO)
}

func IsInvalidOption(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrInvalidOption)
}

func IsUnknownKind(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrUnknownKind)
}

func IsNoThread(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrNoThread)
}

func IsNetworkUnmatched(err error) bool {
	return berrors.Is(unwrapOpError(err), ErrNetworkUnmatched)
}
