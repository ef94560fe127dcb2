package iocp

import (
	"github.com/brickingsoft/iocp/pkg/aio"
	"github.com/brickingsoft/rxp"
)

// Executors
// returns the executors that run overlapped operations, starting the engine
// with defaults when needed.
func Executors() rxp.Executors {
	if err := Startup(); err != nil {
		return nil
	}
	return aio.Process().Executors()
}
