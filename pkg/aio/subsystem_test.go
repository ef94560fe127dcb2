package aio_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brickingsoft/iocp/pkg/aio"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsystem_InitFailureIsSticky(t *testing.T) {
	sub := aio.NewSubsystem()
	calls := atomic.Int32{}
	cause := errors.New("no port for you")
	options := aio.Options{
		OpenPort: func() (aio.Port, error) {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)
			return nil, cause
		},
	}
	wg := new(sync.WaitGroup)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sub.Init(options)
			assert.True(t, aio.IsInitialization(err), err)
		}()
	}
	wg.Wait()
	assert.True(t, aio.IsInitialization(sub.Init(aio.Options{})))
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, sub.Running())
	assert.NoError(t, sub.Cleanup())
}

func TestSubsystem_InitCleanup(t *testing.T) {
	sub := aio.NewSubsystem()
	require.NoError(t, sub.Init(aio.Options{}))
	require.NoError(t, sub.Init(aio.Options{}))
	require.True(t, sub.Running())
	require.NoError(t, sub.Cleanup())
	require.NoError(t, sub.Cleanup())
	require.False(t, sub.Running())

	buf, err := aio.NewBuffer(aio.OpWrite, 1)
	require.NoError(t, err)
	defer buf.Release()
	require.True(t, aio.IsClosed(sub.Submit(buf, func() (int, error) { return 0, nil })))
}

// deafPort drops the shutdown sentinel so cleanup has to force the
// dispatcher out.
type deafPort struct {
	aio.Port
}

func (p deafPort) Post(buf *aio.Buffer, qty uint32) error {
	if buf == nil {
		return nil
	}
	return p.Port.Post(buf, qty)
}

func TestSubsystem_CleanupTimeout(t *testing.T) {
	sub := aio.NewSubsystem()
	require.NoError(t, sub.Init(aio.Options{
		CleanupTimeout: 20 * time.Millisecond,
		OpenPort: func() (aio.Port, error) {
			port, err := aio.OpenPort()
			if err != nil {
				return nil, err
			}
			return deafPort{Port: port}, nil
		},
	}))
	start := time.Now()
	require.NoError(t, sub.Cleanup())
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, sub.Running())
}

func TestSubsystem_StaleCompletion(t *testing.T) {
	sub := newSubsystem(t)
	buf, err := aio.NewBuffer(aio.OpRead, 4)
	require.NoError(t, err)
	require.NoError(t, sub.Post(buf, 4, nil))
	require.True(t, aio.IsUnexpectedCompletionError(sub.Post(nil, 0, nil)))
	time.Sleep(10 * time.Millisecond)
	assert.True(t, sub.Running(), "unbound completions are ignored")
	buf.Release()
}

type lockedWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *lockedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestSubsystem_UnexpectedCompletionWarnings(t *testing.T) {
	out := new(lockedWriter)
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(out)),
		stumpy.L.WithLevel(logiface.LevelWarning),
	).Logger()
	sub := aio.NewSubsystem()
	require.NoError(t, sub.Init(aio.Options{Logger: logger}))
	defer func() {
		require.NoError(t, sub.Cleanup())
	}()

	bufs := make([]*aio.Buffer, 0, 10)
	for i := 0; i < 10; i++ {
		buf, err := aio.NewBuffer(aio.OpRead, 4)
		require.NoError(t, err)
		bufs = append(bufs, buf)
		require.NoError(t, sub.Post(buf, 4, nil))
	}
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), `"unbound"`) >= 5
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5, strings.Count(out.String(), `"unbound"`), "warnings are rate limited per category")
	assert.Contains(t, out.String(), "unexpected completion")
	for _, buf := range bufs {
		buf.Release()
	}
}
