package aio_test

import (
	"io"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brickingsoft/iocp/pkg/aio"
	"github.com/stretchr/testify/require"
)

func newSubsystem(t *testing.T) *aio.Subsystem {
	t.Helper()
	sub := aio.NewSubsystem()
	if err := sub.Init(aio.Options{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := sub.Cleanup(); err != nil {
			t.Error(err)
		}
	})
	return sub
}

type countingDriver struct {
	aio.UnimplementedDriver
	finalized atomic.Int32
}

func (d *countingDriver) Finalize(*aio.Channel) {
	d.finalized.Add(1)
}

func expectViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected invariant violation")
		}
		if _, ok := r.(*aio.InvariantViolation); !ok {
			t.Fatalf("unexpected panic %v", r)
		}
	}()
	fn()
}

func TestChannel_RefCount(t *testing.T) {
	driver := &countingDriver{}
	ch, err := aio.NewChannel(aio.NewSubsystem(), driver, aio.ChannelOptions{})
	if err != nil {
		t.Fatal(err)
	}
	const k = 8
	for i := 0; i < k; i++ {
		ch.Acquire()
	}
	for i := 0; i < k; i++ {
		ch.Release()
	}
	if n := driver.finalized.Load(); n != 0 {
		t.Fatal("finalized while referenced", n)
	}
	ch.Release()
	if n := driver.finalized.Load(); n != 1 {
		t.Fatal("expected exactly one finalize, got", n)
	}
	expectViolation(t, ch.Release)
	if n := driver.finalized.Load(); n != 1 {
		t.Fatal("over-release must not finalize again", n)
	}
}

func TestChannel_RefCountConcurrent(t *testing.T) {
	driver := &countingDriver{}
	ch, err := aio.NewChannel(aio.NewSubsystem(), driver, aio.ChannelOptions{})
	if err != nil {
		t.Fatal(err)
	}
	wg := new(sync.WaitGroup)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				ch.Acquire()
				runtime.Gosched()
				ch.Release()
			}
		}()
	}
	wg.Wait()
	ch.Lock()
	refs := ch.Refs()
	ch.Unlock()
	if refs != 1 {
		t.Fatal("unexpected refs", refs)
	}
	ch.Release()
	if driver.finalized.Load() != 1 {
		t.Fatal("expected finalize")
	}
}

func TestChannel_LinkedOverRelease(t *testing.T) {
	table := aio.NewTable()
	ch, err := aio.NewChannel(aio.NewSubsystem(), &countingDriver{}, aio.ChannelOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ch.Lock()
	table.Attach(ch)
	if !table.Link(ch) {
		t.Fatal("link failed")
	}
	ch.Unlock()
	ch.Release()
	expectViolation(t, ch.Release)
}

func TestChannel_AwaitWake(t *testing.T) {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for round := 0; round < 500; round++ {
		ch, err := aio.NewChannel(aio.NewSubsystem(), &countingDriver{}, aio.ChannelOptions{})
		if err != nil {
			t.Fatal(err)
		}
		done := false
		waits := 0
		wakes := 0
		delay := time.Duration(rnd.Intn(50)) * time.Microsecond
		wg := new(sync.WaitGroup)
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch.Lock()
			for !done {
				waits++
				ch.AwaitCompletion()
			}
			ch.Unlock()
		}()
		go func() {
			defer wg.Done()
			time.Sleep(delay)
			ch.Lock()
			done = true
			if ch.WakeAfterCompletion() {
				wakes++
			}
			ch.Unlock()
		}()
		wg.Wait()
		ch.Lock()
		flags := ch.Flags()
		ch.Unlock()
		if flags&aio.FlagBlockedForIO != 0 {
			t.Fatal("blocked flag left set in round", round)
		}
		if wakes > 1 || waits != wakes {
			t.Fatal("round", round, "waits", waits, "wakes", wakes)
		}
		ch.Release()
	}
}

func TestChannel_WakeWithoutWaiter(t *testing.T) {
	ch, err := aio.NewChannel(aio.NewSubsystem(), &countingDriver{}, aio.ChannelOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Release()
	ch.Lock()
	defer ch.Unlock()
	if ch.WakeAfterCompletion() {
		t.Fatal("wake without waiter must be a no-op")
	}
}

func TestChannel_BlockingWrite(t *testing.T) {
	sub := newSubsystem(t)
	driver := aio.NewNullDriver(4)
	ch, err := aio.NewChannel(sub, driver, aio.ChannelOptions{Blocking: true})
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		buf := <-driver.Submitted()
		if buf.Op() != aio.OpWrite || buf.Data().Len() != 100 {
			t.Error("unexpected submission", buf.Op(), buf.Data().Len())
		}
		if err := sub.Post(buf, 100, nil); err != nil {
			t.Error(err)
		}
	}()
	n, err := ch.Write(make([]byte, 100))
	if err != nil {
		t.Fatal(err)
	}
	if n != 100 {
		t.Fatal("expected 100 bytes written, got", n)
	}
	status := ch.Status()
	if status.State != aio.StateOpen || status.BytesWritten != 100 || status.LastWrite != 100 {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestChannel_ConnectBusyAndFailure(t *testing.T) {
	sub := newSubsystem(t)
	driver := aio.NewNullDriver(4)
	ch, err := aio.NewChannel(sub, driver, aio.ChannelOptions{})
	require.NoError(t, err)

	require.NoError(t, ch.Connect(false))
	require.True(t, aio.IsBusy(ch.Connect(false)))
	ch.Lock()
	require.Equal(t, aio.StateConnecting, ch.State())
	ch.Unlock()
	connecting, err := ch.GetOption("-connecting")
	require.NoError(t, err)
	require.Equal(t, "1", connecting)

	_, err = ch.Write([]byte("x"))
	require.True(t, aio.IsWouldBlock(err))

	buf := <-driver.Submitted()
	require.Equal(t, aio.OpConnect, buf.Op())
	require.NoError(t, sub.Post(buf, 0, io.ErrClosedPipe))
	require.Eventually(t, func() bool {
		return ch.Status().State == aio.StateError
	}, time.Second, time.Millisecond)

	msg, err := ch.GetOption("-error")
	require.NoError(t, err)
	require.NotEmpty(t, msg)
	_, err = ch.Read(make([]byte, 8))
	require.True(t, aio.IsIO(err), err)
	require.NoError(t, ch.Close())
}

func TestChannel_ReadAheadAndEOF(t *testing.T) {
	sub := newSubsystem(t)
	driver := aio.NewNullDriver(4)
	ch, err := aio.NewChannel(sub, driver, aio.ChannelOptions{BufferSize: 64})
	require.NoError(t, err)

	p := make([]byte, 16)
	_, err = ch.Read(p)
	require.True(t, aio.IsWouldBlock(err))
	ch.Lock()
	require.Equal(t, aio.StateReading, ch.State())
	ch.Unlock()

	buf := <-driver.Submitted()
	require.Equal(t, aio.OpRead, buf.Op())
	require.Equal(t, 64, len(buf.Data().Free()))
	n := copy(buf.Data().Free(), "hello")
	require.NoError(t, sub.Post(buf, n, nil))
	require.Eventually(t, func() bool {
		return ch.Status().Buffered == 5
	}, time.Second, time.Millisecond)

	n, err = ch.Read(p[:3])
	require.NoError(t, err)
	require.Equal(t, "hel", string(p[:n]))
	n, err = ch.Read(p)
	require.NoError(t, err)
	require.Equal(t, "lo", string(p[:n]))

	next := <-driver.Submitted()
	require.Equal(t, aio.OpRead, next.Op())
	require.NoError(t, sub.Post(next, 0, nil))
	require.Eventually(t, func() bool {
		return ch.Status().EOF
	}, time.Second, time.Millisecond)
	for i := 0; i < 2; i++ {
		_, err = ch.Read(p)
		require.ErrorIs(t, err, io.EOF)
	}
	status := ch.Status()
	require.Equal(t, uint64(5), status.BytesRead)
	require.NoError(t, ch.Close())
}

func TestChannel_CloseCancelsOutstanding(t *testing.T) {
	sub := newSubsystem(t)
	driver := aio.NewNullDriver(4)
	ch, err := aio.NewChannel(sub, driver, aio.ChannelOptions{})
	require.NoError(t, err)

	n, err := ch.Write([]byte("queued"))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	_, err = ch.Write([]byte("again"))
	require.True(t, aio.IsWouldBlock(err))

	require.NoError(t, ch.Close())
	require.True(t, aio.IsClosed(ch.Close()))
	_, err = ch.Read(make([]byte, 4))
	require.True(t, aio.IsClosed(err))
}

func TestChannel_Options(t *testing.T) {
	ch, err := aio.NewChannel(aio.NewSubsystem(), aio.NewNullDriver(1), aio.ChannelOptions{})
	require.NoError(t, err)
	defer ch.Release()

	require.NoError(t, ch.SetOption("-blocking", "yes"))
	v, err := ch.GetOption("-blocking")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	require.NoError(t, ch.SetOption("-buffersize", "128"))
	v, err = ch.GetOption("-buffersize")
	require.NoError(t, err)
	require.Equal(t, "128", v)

	require.Error(t, ch.SetOption("-buffersize", "0"))
	require.Error(t, ch.SetOption("-blocking", "maybe"))
	require.Error(t, ch.SetOption("-nodelay", "1"))
	_, err = ch.GetOption("-peername")
	require.Error(t, err)
}
