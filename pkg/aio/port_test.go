package aio_test

import (
	"testing"
	"time"

	"github.com/brickingsoft/iocp/pkg/aio"
)

func TestPort_PostWait(t *testing.T) {
	port, err := aio.OpenPort()
	if err != nil {
		t.Fatal(err)
	}
	bufs := make([]*aio.Buffer, 3)
	for i := range bufs {
		bufs[i], err = aio.NewBuffer(aio.OpRead, 8)
		if err != nil {
			t.Fatal(err)
		}
		if err = port.Post(bufs[i], uint32(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err = port.Post(nil, 0); err != nil {
		t.Fatal(err)
	}
	for i := range bufs {
		buf, qty, waitErr := port.Wait()
		if waitErr != nil {
			t.Fatal(waitErr)
		}
		if buf != bufs[i] || qty != uint32(i+1) {
			t.Fatal("completions out of order", i, qty)
		}
		buf.Release()
	}
	buf, qty, err := port.Wait()
	if err != nil || buf != nil || qty != 0 {
		t.Fatal("expected the sentinel", buf, qty, err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, waitErr := port.Wait()
		done <- waitErr
	}()
	time.Sleep(10 * time.Millisecond)
	if err = port.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case waitErr := <-done:
		if !aio.IsPortClosed(waitErr) {
			t.Fatal("expected port closed, got", waitErr)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not release the waiter")
	}
	if err = port.Post(nil, 0); !aio.IsPortClosed(err) {
		t.Fatal("post after close must fail, got", err)
	}
}
