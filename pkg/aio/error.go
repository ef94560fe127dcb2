package aio

import (
	"fmt"

	"github.com/brickingsoft/errors"
)

var (
	ErrUnexpectedCompletion = errors.Define("unexpected completion error")
	ErrBusy                 = errors.Define("busy")
	ErrClosed               = errors.Define("use of closed channel")
	ErrWouldBlock           = errors.Define("operation would block")
	ErrAllocate             = errors.Define("allocate buffer failed")
	ErrInitialization       = errors.Define("completion subsystem initialization failed")
	ErrIO                   = errors.Define("i/o failure")
	ErrCanceled             = errors.Define("operation canceled")
	ErrPortClosed           = errors.Define("completion port closed")
	ErrUnsupported          = errors.Define("operation not supported by channel")
	ErrInvalidOption        = errors.Define("invalid channel option")
	ErrNoThread             = errors.Define("channel has no owning thread")
)

func IsUnexpectedCompletionError(err error) bool {
	return errors.Is(err, ErrUnexpectedCompletion)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

func IsAllocate(err error) bool {
	return errors.Is(err, ErrAllocate)
}

func IsInitialization(err error) bool {
	return errors.Is(err, ErrInitialization)
}

func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func IsPortClosed(err error) bool {
	return errors.Is(err, ErrPortClosed)
}

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "aio"
)

const (
	errMetaOpKey      = "op"
	errMetaOpInit     = "init"
	errMetaOpConnect  = "connect"
	errMetaOpAccept   = "accept"
	errMetaOpListen   = "listen"
	errMetaOpClose    = "close"
	errMetaOpRead     = "read"
	errMetaOpWrite    = "write"
	errMetaOpOption   = "option"
	errMetaOpDispatch = "dispatch"
)

func newOpError(msg string, op string, cause error) error {
	return errors.New(
		msg,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithWrap(cause),
	)
}

// InvariantViolation is raised with panic when the engine's bookkeeping
// is corrupt. It is never returned as an error.
type InvariantViolation struct {
	Message string
}

func (v *InvariantViolation) Error() string {
	return "aio: invariant violation: " + v.Message
}

func violate(format string, args ...any) {
	panic(&InvariantViolation{Message: fmt.Sprintf(format, args...)})
}
