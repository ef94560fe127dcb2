package once

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/errors"
)

type State int32

const (
	NotStarted State = iota
	InProgress
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case InProgress:
		return "in-progress"
	case Done:
		return "done"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrFailed = errors.Define("one-time initialization failed")
)

func IsFailed(err error) bool {
	return errors.Is(err, ErrFailed)
}

// Func is the routine guarded by a Gate.
type Func func(arg any) error

// Gate runs a Func exactly once, even when the first callers race.
//
// The zero value is ready to use. Once the guarded function fails the gate
// stays failed: every later caller gets the same error and the function is
// never run again.
type Gate struct {
	state atomic.Int32
	err   error
}

// PollInterval is how long a waiter sleeps between state checks while
// another caller runs the guarded function.
var PollInterval = time.Millisecond

func (g *Gate) State() State {
	return State(g.state.Load())
}

func (g *Gate) Do(fn Func, arg any) (err error) {
	switch State(g.state.Load()) {
	case Done:
		return
	case Failed:
		err = g.err
		return
	}
	if g.state.CompareAndSwap(int32(NotStarted), int32(InProgress)) {
		err = g.run(fn, arg)
		return
	}
	for {
		switch State(g.state.Load()) {
		case Done:
			return
		case InProgress:
			time.Sleep(PollInterval)
		default:
			// err is written before the state leaves InProgress
			err = g.err
			if err == nil {
				err = ErrFailed
			}
			return
		}
	}
}

func (g *Gate) run(fn Func, arg any) (err error) {
	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		g.err = errors.From(ErrFailed, errors.WithWrap(fmt.Errorf("panic: %v", r)))
		g.state.Store(int32(Failed))
		panic(r)
	}()
	fnErr := fn(arg)
	completed = true
	if fnErr != nil {
		err = errors.From(ErrFailed, errors.WithWrap(fnErr))
		g.err = err
		g.state.Store(int32(Failed))
		return
	}
	g.state.Store(int32(Done))
	return
}
