package iocp_test

import (
	"io"
	"os"
	"testing"

	"github.com/brickingsoft/iocp"
	"github.com/joeycumines/logiface"
)

func TestMain(m *testing.M) {
	if err := iocp.Startup(
		iocp.WithLogger(iocp.NewLogger(io.Discard, logiface.LevelDebug)),
		iocp.WithMaxGoroutines(64),
	); err != nil {
		panic(err)
	}
	code := m.Run()
	if err := iocp.Shutdown(); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestStartup_Idempotent(t *testing.T) {
	if err := iocp.Startup(iocp.WithMaxGoroutines(1)); err != nil {
		t.Fatal(err)
	}
}
