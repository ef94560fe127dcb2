package iocp

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/iocp/pkg/aio"
	"github.com/brickingsoft/iocp/pkg/exits"
	"github.com/joeycumines/go-eventloop"
)

// Thread is an event loop owning a dispatch table. Channels opened with its
// Context are attached to the table, and their ready notifications run as
// loop tasks.
type Thread struct {
	loop    *eventloop.Loop
	table   *aio.Table
	ctx     context.Context
	exits   exits.Registry
	started atomic.Bool
}

// NewThread
// builds a Thread whose Context derives from ctx.
func NewThread(ctx context.Context) (*Thread, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	loop, err := eventloop.New()
	if err != nil {
		return nil, err
	}
	t := &Thread{
		loop:  loop,
		table: aio.NewTable(),
	}
	t.ctx = aio.WithTable(ctx, t.table)
	t.table.SetWaker(t.wake)
	t.exits.Register(t.table.UnlinkThread)
	return t, nil
}

// Context carries the Thread to Open.
func (t *Thread) Context() context.Context {
	return t.ctx
}

func (t *Thread) Table() *aio.Table {
	return t.table
}

func (t *Thread) wake() {
	if err := t.loop.Submit(func() {
		t.PollCheck()
	}); err != nil {
		aio.Process().Logger().Debug().Uint64("thread", t.table.ID()).Err(err).Log("wake after loop termination")
	}
}

// Run drives the event loop until it is shut down, closed or ctx is done,
// then runs the thread exit handlers.
func (t *Thread) Run(ctx context.Context) error {
	t.started.Store(true)
	defer t.exits.Run()
	return t.loop.Run(ctx)
}

// Submit runs fn on the event loop.
func (t *Thread) Submit(fn func()) error {
	return t.loop.Submit(func() {
		fn()
	})
}

// OnExit registers fn to run when the Thread stops. Handlers run last
// registered first.
func (t *Thread) OnExit(fn func()) exits.Handle {
	return t.exits.Register(fn)
}

// Shutdown stops the loop after queued tasks ran. A Thread that never ran
// exits here.
func (t *Thread) Shutdown(ctx context.Context) error {
	err := t.loop.Shutdown(ctx)
	t.exitUnstarted()
	return err
}

// Close stops the loop without draining queued tasks.
func (t *Thread) Close() error {
	err := t.loop.Close()
	t.exitUnstarted()
	return err
}

func (t *Thread) exitUnstarted() {
	if t.started.CompareAndSwap(false, true) {
		t.exits.Run()
	}
}

// PollSetup returns how long the loop may block: zero while channels are
// ready. The event loop has no pre-poll hook, so Run does not call it;
// it serves callers driving their own poll.
func (t *Thread) PollSetup(maxBlock time.Duration) time.Duration {
	return t.table.Setup(maxBlock)
}

// PollCheck delivers the ready channels' notifications. It must run on the
// loop.
func (t *Thread) PollCheck() int {
	return t.table.Check(nil)
}
