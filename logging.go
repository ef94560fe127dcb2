package iocp

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewLogger returns a JSON logger writing to w at level.
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func defaultLogger() *logiface.Logger[logiface.Event] {
	return NewLogger(os.Stderr, logiface.LevelWarning)
}
