package iocp

import (
	"io"
	"time"

	"github.com/brickingsoft/iocp/pkg/aio"
	"github.com/brickingsoft/rxp"
	"github.com/joeycumines/logiface"
)

const (
	DefaultCleanupTimeout = aio.DefaultCleanupTimeout
	DefaultDialTimeout    = 10 * time.Second
	DefaultBufferSize     = aio.DefaultBufferSize
)

// Options configure the process: the completion subsystem, its executors
// and logging. They are applied once, by the first Startup.
type Options struct {
	RxpOptions     rxp.Options
	Logger         *logiface.Logger[logiface.Event]
	CleanupTimeout time.Duration
	loggerSet      bool
}

func (options *Options) AsRxpOptions() []rxp.Option {
	opts := make([]rxp.Option, 0, 1)
	if n := options.RxpOptions.MaxGoroutines; n > 0 {
		opts = append(opts, rxp.MaxGoroutines(n))
	}
	if n := options.RxpOptions.MaxReadyGoroutinesIdleDuration; n > 0 {
		opts = append(opts, rxp.MaxReadyGoroutinesIdleDuration(n))
	}
	if n := options.RxpOptions.CloseTimeout; n > 0 {
		opts = append(opts, rxp.WithCloseTimeout(n))
	}
	if n := options.RxpOptions.MaxprocsOptions.MinGOMAXPROCS; n > 0 {
		opts = append(opts, rxp.MinGOMAXPROCS(n))
	}
	return opts
}

type Option func(options *Options) (err error)

// WithLogger
// sets the engine logger. Nil disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return func(options *Options) (err error) {
		options.Logger = logger
		options.loggerSet = true
		return
	}
}

// engineLogger is the logger given by WithLogger, nil included, or the
// default stderr logger when WithLogger was not applied.
func (options *Options) engineLogger() *logiface.Logger[logiface.Event] {
	if options.loggerSet {
		return options.Logger
	}
	if options.Logger != nil {
		return options.Logger
	}
	return defaultLogger()
}

// WithCleanupTimeout
// bounds the wait for the dispatcher at Shutdown. Default is 500ms.
func WithCleanupTimeout(timeout time.Duration) Option {
	return func(options *Options) (err error) {
		if timeout > 0 {
			options.CleanupTimeout = timeout
		}
		return
	}
}

// WithMaxGoroutines
// caps the executor goroutines running overlapped operations.
func WithMaxGoroutines(n int) Option {
	return func(options *Options) error {
		return rxp.MaxGoroutines(n)(&options.RxpOptions)
	}
}

func WithMaxReadyGoroutinesIdleDuration(d time.Duration) Option {
	return func(options *Options) error {
		return rxp.MaxReadyGoroutinesIdleDuration(d)(&options.RxpOptions)
	}
}

// WithMinGOMAXPROCS
// raises GOMAXPROCS to at least n when the executors start.
func WithMinGOMAXPROCS(n int) Option {
	return func(options *Options) error {
		return rxp.MinGOMAXPROCS(n)(&options.RxpOptions)
	}
}

// WithCloseTimeout
// sets the executors close timeout.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		return rxp.WithCloseTimeout(timeout)(&options.RxpOptions)
	}
}

// ChannelOptions configure one channel at Open.
type ChannelOptions struct {
	Network      string
	Address      string
	Conn         io.ReadWriteCloser
	Driver       aio.Driver
	Blocking     bool
	BufferSize   int
	AsyncConnect bool
	DialTimeout  time.Duration
	Backlog      int
	OnAccept     func(h *Handle)
	Logger       *logiface.Logger[logiface.Event]
}

type ChannelOption func(options *ChannelOptions) (err error)

// WithAddress
// sets the address a tcp channel dials or a tcp-server channel listens on.
func WithAddress(network string, address string) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		switch network {
		case "", "tcp", "tcp4", "tcp6":
		default:
			err = ErrNetworkUnmatched
			return
		}
		if network == "" {
			network = "tcp"
		}
		options.Network = network
		options.Address = address
		return
	}
}

// WithConn
// sets the stream a pipe channel wraps.
func WithConn(conn io.ReadWriteCloser) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		options.Conn = conn
		return
	}
}

// WithDriver
// replaces the driver chosen by kind.
func WithDriver(driver aio.Driver) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		options.Driver = driver
		return
	}
}

// WithBlocking
// selects blocking mode. Channels are non-blocking by default.
func WithBlocking(blocking bool) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		options.Blocking = blocking
		return
	}
}

func WithBufferSize(size int) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		if size > 0 {
			options.BufferSize = size
		}
		return
	}
}

// WithAsyncConnect
// returns from Open before a tcp connect finishes.
func WithAsyncConnect() ChannelOption {
	return func(options *ChannelOptions) (err error) {
		options.AsyncConnect = true
		return
	}
}

func WithDialTimeout(timeout time.Duration) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		if timeout > 0 {
			options.DialTimeout = timeout
		}
		return
	}
}

// WithBacklog
// sets how many submissions a null channel holds before reporting busy.
func WithBacklog(n int) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		if n > 0 {
			options.Backlog = n
		}
		return
	}
}

// WithAcceptHandler
// receives the connections accepted by a tcp-server channel, on the
// owning thread.
func WithAcceptHandler(fn func(h *Handle)) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		options.OnAccept = fn
		return
	}
}

func WithChannelLogger(logger *logiface.Logger[logiface.Event]) ChannelOption {
	return func(options *ChannelOptions) (err error) {
		options.Logger = logger
		return
	}
}
