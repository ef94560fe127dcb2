// Package iocp is a completion-port socket channel engine: channels with a
// synchronous-looking Read/Write/Close surface whose operations are
// submitted overlapped and completed by one dispatcher per process, with
// readiness delivered on the event loop of the owning thread.
package iocp

import (
	"github.com/brickingsoft/iocp/pkg/aio"
	"github.com/brickingsoft/iocp/pkg/exits"
)

// Startup
// initializes the process completion subsystem. Only the first call
// applies options; a failed initialization keeps failing.
//
// Open calls Startup without options, so calling it is only required to
// customize the engine.
func Startup(options ...Option) (err error) {
	opts := Options{
		CleanupTimeout: DefaultCleanupTimeout,
	}
	for _, option := range options {
		if err = option(&opts); err != nil {
			return
		}
	}
	err = aio.ProcessInit(aio.Options{
		Logger:          opts.engineLogger(),
		ExecutorOptions: opts.AsRxpOptions(),
		CleanupTimeout:  opts.CleanupTimeout,
		RegisterExit:    true,
	})
	return
}

// Shutdown
// runs the process exit handlers, which stop the dispatcher and release
// the completion port and executors.
func Shutdown() error {
	exits.Run()
	return aio.ProcessCleanup()
}
