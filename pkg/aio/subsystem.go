package aio

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/iocp/pkg/exits"
	"github.com/brickingsoft/iocp/pkg/once"
	"github.com/brickingsoft/rxp"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

const DefaultCleanupTimeout = 500 * time.Millisecond

type Options struct {
	// Logger receives engine diagnostics; nil disables logging.
	Logger *logiface.Logger[logiface.Event]
	// Executors run overlapped submissions. When nil the subsystem owns a
	// pool built from ExecutorOptions and closes it at cleanup.
	Executors       rxp.Executors
	ExecutorOptions []rxp.Option
	// CleanupTimeout bounds the wait for the dispatcher at cleanup.
	CleanupTimeout time.Duration
	// OpenPort overrides the completion port factory.
	OpenPort func() (Port, error)
	// RegisterExit registers cleanup as a process exit handler.
	RegisterExit bool
}

// Subsystem owns a completion port, the dispatcher goroutine draining it
// and the executors performing overlapped operations.
//
// Init and Cleanup each run at most once; a failed Init stays failed.
type Subsystem struct {
	initGate       once.Gate
	cleanupGate    once.Gate
	port           Port
	done           chan struct{}
	running        atomic.Bool
	ctx            context.Context
	cancel         context.CancelFunc
	executors      rxp.Executors
	ownsExecutors  bool
	logger         *logiface.Logger[logiface.Event]
	limiter        *catrate.Limiter
	cleanupTimeout time.Duration
	exitHandle     exits.Handle
}

var process Subsystem

// Process is the process-wide subsystem.
func Process() *Subsystem {
	return &process
}

func ProcessInit(options Options) error {
	return process.Init(options)
}

func ProcessCleanup() error {
	return process.Cleanup()
}

func NewSubsystem() *Subsystem {
	return &Subsystem{}
}

func (s *Subsystem) Init(options Options) error {
	return s.initGate.Do(s.init, options)
}

func (s *Subsystem) init(arg any) (err error) {
	options := arg.(Options)
	s.logger = options.Logger
	s.cleanupTimeout = options.CleanupTimeout
	if s.cleanupTimeout <= 0 {
		s.cleanupTimeout = DefaultCleanupTimeout
	}
	s.limiter = catrate.NewLimiter(map[time.Duration]int{
		time.Second: 5,
		time.Minute: 60,
	})

	openPort := options.OpenPort
	if openPort == nil {
		openPort = OpenPort
	}
	port, portErr := openPort()
	if portErr != nil {
		err = newOpError("open completion port failed", errMetaOpInit, errors.From(ErrInitialization, errors.WithWrap(portErr)))
		return
	}
	if netErr := startNetwork(); netErr != nil {
		_ = port.Close()
		err = newOpError("start networking failed", errMetaOpInit, errors.From(ErrInitialization, errors.WithWrap(netErr)))
		return
	}
	if options.Executors != nil {
		s.executors = options.Executors
	} else {
		s.executors = rxp.New(options.ExecutorOptions...)
		s.ownsExecutors = true
	}
	s.port = port
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.dispatch()

	if options.RegisterExit {
		s.exitHandle = exits.Register(func() {
			_ = s.Cleanup()
		})
	}
	s.logger.Debug().Log("completion subsystem started")
	return
}

// Running reports whether the dispatcher is draining the port.
func (s *Subsystem) Running() bool {
	return s.running.Load()
}

func (s *Subsystem) Executors() rxp.Executors {
	return s.executors
}

func (s *Subsystem) Logger() *logiface.Logger[logiface.Event] {
	return s.logger
}

// Context is canceled at cleanup.
func (s *Subsystem) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Submit runs fn on an executor and posts its result for buf.
func (s *Subsystem) Submit(buf *Buffer, fn func() (int, error)) error {
	if !s.Running() {
		return ErrClosed
	}
	return s.executors.Execute(s.ctx, func() {
		n, err := fn()
		if postErr := s.Post(buf, n, err); postErr != nil {
			s.warn("post", buf, postErr)
		}
	})
}

// Post records the outcome of buf's operation and queues its completion.
func (s *Subsystem) Post(buf *Buffer, qty int, cause error) error {
	if buf == nil {
		return ErrUnexpectedCompletion
	}
	if qty < 0 {
		qty = 0
	}
	buf.err = cause
	return s.port.Post(buf, uint32(qty))
}

func (s *Subsystem) dispatch() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)
	for {
		buf, qty, err := s.port.Wait()
		if err != nil {
			if IsPortClosed(err) {
				return
			}
			if buf == nil {
				s.warn("wait", nil, err)
				continue
			}
			if buf.err == nil {
				buf.err = err
			}
		}
		if buf == nil {
			if qty == 0 {
				return
			}
			s.warn("sentinel", nil, ErrUnexpectedCompletion)
			continue
		}
		s.complete(buf, int(qty))
	}
}

func (s *Subsystem) complete(buf *Buffer, qty int) {
	ch := buf.channel
	if ch == nil {
		s.warn("unbound", buf, ErrUnexpectedCompletion)
		return
	}
	ch.mu.Lock()
	if !ch.complete(buf, qty) {
		ch.mu.Unlock()
		s.warn("stale", buf, ErrUnexpectedCompletion)
		return
	}
	buf.unbind()
	ch.Drop()
	buf.Release()
}

func (s *Subsystem) await(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Subsystem) warn(category string, buf *Buffer, err error) {
	if _, ok := s.limiter.Allow(category); !ok {
		return
	}
	entry := s.logger.Warning().Str("category", category).Err(newOpError("unexpected completion", errMetaOpDispatch, err))
	if buf != nil {
		entry = entry.Stringer("op", buf.op)
	}
	entry.Log("unexpected completion")
}

// Cleanup stops the dispatcher and releases the port. A dispatcher that
// does not finish within the cleanup timeout is forced out by closing the
// port.
func (s *Subsystem) Cleanup() error {
	return s.cleanupGate.Do(s.cleanup, nil)
}

func (s *Subsystem) cleanup(any) error {
	if s.initGate.State() != once.Done {
		return nil
	}
	if s.exitHandle != 0 {
		exits.Unregister(s.exitHandle)
	}
	if err := s.port.Post(nil, 0); err != nil {
		s.logger.Warning().Err(err).Log("post shutdown sentinel failed")
	}
	if !s.await(s.cleanupTimeout) {
		s.logger.Warning().Dur("timeout", s.cleanupTimeout).Log("dispatcher did not stop in time, closing the completion port")
	}
	s.running.Store(false)
	s.cancel()
	closeErr := s.port.Close()
	if !s.await(s.cleanupTimeout) {
		s.logger.Warning().Log("dispatcher abandoned inside a completion")
	}
	stopNetwork()
	if s.ownsExecutors {
		if err := s.executors.Close(); err != nil {
			s.logger.Warning().Err(err).Log("close executors failed")
		}
	}
	s.logger.Debug().Log("completion subsystem stopped")
	if closeErr != nil {
		return newOpError("close completion port failed", errMetaOpClose, closeErr)
	}
	return nil
}
