package once_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brickingsoft/iocp/pkg/once"
)

func TestGate_Do(t *testing.T) {
	gate := once.Gate{}
	calls := 0
	for i := 0; i < 3; i++ {
		if err := gate.Do(func(arg any) error {
			calls++
			if arg.(string) != "arg" {
				t.Error("unexpected arg", arg)
			}
			return nil
		}, "arg"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatal("expected one call, got", calls)
	}
	if gate.State() != once.Done {
		t.Fatal("unexpected state", gate.State())
	}
}

func TestGate_DoConcurrent(t *testing.T) {
	const racers = 16
	gate := once.Gate{}
	calls := atomic.Int32{}
	start := make(chan struct{})
	errs := make(chan error, racers)
	wg := new(sync.WaitGroup)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- gate.Do(func(any) error {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond)
				return nil
			}, nil)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error("racer observed failure:", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatal("expected exactly one execution, got", n)
	}
}

func TestGate_DoConcurrentFailure(t *testing.T) {
	const racers = 12
	gate := once.Gate{}
	calls := atomic.Int32{}
	cause := errors.New("boom")
	fn := func(any) error {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return cause
	}
	start := make(chan struct{})
	errs := make(chan error, racers)
	wg := new(sync.WaitGroup)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- gate.Do(fn, nil)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if !once.IsFailed(err) {
			t.Error("racer should observe failure, got", err)
		}
	}
	if err := gate.Do(fn, nil); !once.IsFailed(err) {
		t.Fatal("expected sticky failure, got", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatal("expected exactly one execution, got", n)
	}
	if gate.State() != once.Failed {
		t.Fatal("unexpected state", gate.State())
	}
}

func TestGate_DoPanic(t *testing.T) {
	gate := once.Gate{}
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = gate.Do(func(any) error {
			panic("init exploded")
		}, nil)
	}()
	if err := gate.Do(func(any) error { return nil }, nil); !once.IsFailed(err) {
		t.Fatal("expected failure after panic, got", err)
	}
}
