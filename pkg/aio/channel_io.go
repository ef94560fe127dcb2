package aio

import (
	"io"
	"strconv"
	"strings"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/iocp/pkg/bytebuffers"
)

// start puts buf in flight through fn. The caller's buffer reference moves
// to the engine, on failure it is released. ch must be locked.
func (ch *Channel) start(buf *Buffer, fn func(*Channel, *Buffer) error) error {
	slot := buf.op.slot()
	if ch.pending[slot] != nil {
		buf.Release()
		return ErrBusy
	}
	buf.bind(ch)
	ch.pending[slot] = buf
	if err := fn(ch, buf); err != nil {
		ch.pending[slot] = nil
		buf.unbind()
		ch.refs--
		buf.Release()
		return err
	}
	return nil
}

func (ch *Channel) startRead() error {
	buf, err := NewBuffer(OpRead, ch.bufferSize)
	if err != nil {
		return err
	}
	return ch.start(buf, ch.driver.Read)
}

// readAhead keeps one read posted while nothing is buffered.
func (ch *Channel) readAhead() {
	if ch.state != StateOpen || ch.input.Length() > 0 || ch.flags&FlagEOF != 0 || ch.readErr != nil {
		return
	}
	if ch.pending[slotRead] != nil || ch.pending[slotConnect] != nil {
		return
	}
	if err := ch.startRead(); err != nil && !IsUnsupported(err) {
		ch.logger.Warning().Uint64("channel", ch.id).Err(err).Log("read-ahead failed")
	}
}

// Read copies buffered input into p. Without buffered input it returns
// io.EOF after end of stream, the pending read error, ErrWouldBlock in
// non-blocking mode, or waits for the next read completion.
func (ch *Channel) Read(p []byte) (n int, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(p) == 0 {
		err = ch.usable()
		return
	}
	for {
		if err = ch.usable(); err != nil {
			return
		}
		for n < len(p) && ch.input.Length() > 0 {
			head := ch.input.Peek().(*Buffer)
			n += head.data.Move(p[n:])
			if head.data.Empty() {
				ch.input.Remove()
				head.Release()
			}
		}
		if n > 0 {
			ch.readAhead()
			return
		}
		if ch.readErr != nil {
			err = ch.readErr
			ch.readErr = nil
			return
		}
		if ch.flags&FlagEOF != 0 {
			err = io.EOF
			return
		}
		if ch.pending[slotRead] == nil && ch.pending[slotConnect] == nil {
			if err = ch.startRead(); err != nil {
				return
			}
		}
		if !ch.blocking {
			err = ErrWouldBlock
			return
		}
		ch.AwaitCompletion()
	}
}

// Write submits p as one overlapped write. In blocking mode it waits for
// the completion and returns the transferred count; otherwise it returns
// len(p) once the write is in flight.
func (ch *Channel) Write(p []byte) (n int, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(p) == 0 {
		err = ch.usable()
		return
	}
	for {
		if err = ch.usable(); err != nil {
			return
		}
		if ch.writeErr != nil {
			err = ch.writeErr
			ch.writeErr = nil
			return
		}
		if ch.pending[slotWrite] == nil && ch.pending[slotConnect] == nil {
			break
		}
		if !ch.blocking {
			err = ErrWouldBlock
			return
		}
		ch.AwaitCompletion()
	}
	buf, allocErr := NewBuffer(OpWrite, len(p))
	if allocErr != nil {
		err = newOpError("write failed", errMetaOpWrite, allocErr)
		return
	}
	buf.data.Fill(p)
	if err = ch.start(buf, ch.driver.Write); err != nil {
		return
	}
	if !ch.blocking {
		n = len(p)
		return
	}
	for ch.pending[slotWrite] == buf {
		ch.AwaitCompletion()
	}
	if ch.writeErr != nil {
		err = ch.writeErr
		ch.writeErr = nil
		return
	}
	n = ch.lastWrite
	return
}

// Connect starts the driver's connect. With wait it blocks for the outcome;
// otherwise failures surface through the next operation and the -error
// option.
func (ch *Channel) Connect(wait bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ch.usable(); err != nil {
		return err
	}
	buf, err := NewBuffer(OpConnect, 0)
	if err != nil {
		return err
	}
	if err = ch.start(buf, ch.driver.Connect); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	for ch.pending[slotConnect] == buf {
		ch.AwaitCompletion()
	}
	return ch.usable()
}

// Accept arms the driver's accept loop. Each accepted connection becomes a
// new channel handed to fn on the owning thread.
func (ch *Channel) Accept(fn func(*Channel)) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ch.usable(); err != nil {
		return err
	}
	ch.onAccept = fn
	if ch.pending[slotRead] != nil {
		return nil
	}
	return ch.startAccept()
}

func (ch *Channel) startAccept() error {
	buf, err := NewBuffer(OpAccept, 0)
	if err != nil {
		return err
	}
	return ch.start(buf, ch.driver.Accept)
}

// Offer queues an accepted channel for delivery. ch must be locked.
func (ch *Channel) Offer(accepted *Channel) {
	ch.accepted = append(ch.accepted, accepted)
}

// BlockUntilReady waits for a pending connect and, in blocking mode, a
// pending write. It reports a deferred error.
func (ch *Channel) BlockUntilReady() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for ch.pending[slotConnect] != nil || (ch.blocking && ch.pending[slotWrite] != nil) {
		ch.AwaitCompletion()
	}
	if err := ch.usable(); err != nil {
		return err
	}
	if err := ch.writeErr; err != nil {
		ch.writeErr = nil
		return err
	}
	return nil
}

// Close shuts the driver down, waits for every outstanding buffer, detaches
// from the owning table and drops the caller's reference.
func (ch *Channel) Close() (err error) {
	ch.mu.Lock()
	switch ch.state {
	case StateClosing, StateClosed:
		ch.mu.Unlock()
		return ErrClosed
	}
	ch.state = StateClosing
	if shutdownErr := ch.driver.Shutdown(ch); shutdownErr != nil {
		err = newOpError("close failed", errMetaOpClose, shutdownErr)
	}
	for len(ch.Outstanding()) > 0 {
		if !ch.subsystem.Running() {
			ch.abandon()
			break
		}
		ch.AwaitCompletion()
	}
	ch.state = StateClosed
	if err == nil && ch.writeErr != nil {
		err = ch.writeErr
	}
	ch.writeErr = nil
	ch.readErr = nil
	ch.drainInput()
	accepted := ch.accepted
	ch.accepted = nil
	ch.handler = nil
	ch.onAccept = nil
	if owner := ch.owner; owner != nil {
		owner.Detach(ch)
	}
	ch.WakeAfterCompletion()
	ch.Drop()
	for _, a := range accepted {
		_ = a.Close()
	}
	return
}

// abandon forgets in-flight buffers that no dispatcher will complete. The
// buffers themselves are left to the garbage collector. ch must be locked.
func (ch *Channel) abandon() {
	for slot, buf := range ch.pending {
		if buf == nil {
			continue
		}
		ch.pending[slot] = nil
		buf.unbind()
		ch.refs--
	}
	ch.logger.Warning().Uint64("channel", ch.id).Log("closed with operations the stopped subsystem will not complete")
}

// complete applies a finished operation. ch must be locked. It reports
// false when buf is not the channel's in-flight buffer.
func (ch *Channel) complete(buf *Buffer, qty int) bool {
	slot := buf.op.slot()
	if ch.pending[slot] != buf {
		return false
	}
	ch.pending[slot] = nil
	closing := ch.state == StateClosing
	cause := buf.err
	switch buf.op {
	case OpRead:
		eof := errors.Is(cause, io.EOF)
		if qty > 0 && (cause == nil || eof) {
			if err := buf.data.Commit(qty); err != nil {
				violate("read completion of %d bytes overflows a %d byte buffer", qty, buf.data.Cap())
			}
			ch.bytesRead += uint64(qty)
			buf.Acquire()
			ch.input.Add(buf)
		}
		switch {
		case eof, cause == nil && qty == 0:
			ch.flags |= FlagEOF
		case cause != nil && !closing:
			ch.readErr = newOpError("read failed", errMetaOpRead, errors.From(ErrIO, errors.WithWrap(cause)))
		}
	case OpWrite:
		if cause != nil {
			if !closing {
				ch.writeErr = newOpError("write failed", errMetaOpWrite, errors.From(ErrIO, errors.WithWrap(cause)))
			}
		} else {
			buf.data.Discard(qty)
			ch.lastWrite = qty
			ch.bytesWritten += uint64(qty)
		}
	case OpConnect:
		if cause != nil && !closing {
			ch.state = StateError
			ch.err = newOpError("connect failed", errMetaOpConnect, errors.From(ErrIO, errors.WithWrap(cause)))
		}
	case OpAccept:
		if cause != nil && !closing {
			ch.readErr = newOpError("accept failed", errMetaOpAccept, errors.From(ErrIO, errors.WithWrap(cause)))
		}
	}
	if c, ok := ch.driver.(Completer); ok {
		c.Completed(ch, buf, qty)
	}
	if closing {
		ch.WakeAfterCompletion()
		return true
	}
	if buf.op == OpAccept && cause == nil && ch.state == StateOpen {
		if err := ch.startAccept(); err != nil {
			ch.readErr = newOpError("accept failed", errMetaOpAccept, err)
		}
	}
	ch.notify()
	return true
}

// notify wakes a blocked caller and queues the channel on its owner's
// ready queue when a watcher is interested. A woken caller may wait on a
// different operation than the one that completed, so the wake never
// replaces the link. ch must be locked.
func (ch *Channel) notify() {
	ch.WakeAfterCompletion()
	if ch.owner == nil {
		return
	}
	if ch.watch&ch.levelEvents() != 0 || len(ch.accepted) > 0 {
		ch.owner.Link(ch)
	}
}

// deliver runs the notification for a channel popped from a ready queue.
// It consumes the link reference.
func (ch *Channel) deliver() {
	ch.mu.Lock()
	open := ch.state == StateOpen || ch.state == StateError
	var events Events
	if open {
		events = ch.levelEvents() & ch.watch
	}
	handler := ch.handler
	onAccept := ch.onAccept
	accepted := ch.accepted
	ch.accepted = nil
	owner := ch.owner
	ch.Drop()
	for _, a := range accepted {
		if !open || onAccept == nil {
			_ = a.Close()
			continue
		}
		if owner != nil {
			a.mu.Lock()
			owner.Attach(a)
			a.mu.Unlock()
		}
		onAccept(a)
	}
	if events != 0 && handler != nil {
		handler(events)
	}
}

// Watch sets the events fn is notified of on the owning thread. A zero
// mask or nil fn stops notifications.
func (ch *Channel) Watch(mask Events, fn func(Events)) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state == StateClosing || ch.state == StateClosed {
		return ErrClosed
	}
	if ch.owner == nil && mask != 0 && fn != nil {
		return ErrNoThread
	}
	if fn == nil {
		mask = 0
	}
	ch.watch = mask
	ch.handler = fn
	if mask&EventReadable != 0 {
		ch.readAhead()
	}
	if ch.owner != nil && mask&ch.levelEvents() != 0 {
		ch.owner.Link(ch)
	}
	return nil
}

// SetOption configures the channel. Unknown names go to the driver.
func (ch *Channel) SetOption(name string, value string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state == StateClosing || ch.state == StateClosed {
		return ErrClosed
	}
	switch name {
	case "-blocking":
		blocking, ok := ParseBool(value)
		if !ok {
			return invalidOption(name, value)
		}
		ch.blocking = blocking
		return nil
	case "-buffersize":
		size, err := strconv.Atoi(value)
		if err != nil || size <= 0 || size > bytebuffers.MaxCapacity {
			return invalidOption(name, value)
		}
		ch.bufferSize = size
		return nil
	case "-error", "-connecting":
		return invalidOption(name, value)
	}
	return ch.driver.SetOption(ch, name, value)
}

func (ch *Channel) GetOption(name string) (string, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch name {
	case "-blocking":
		return FormatBool(ch.blocking), nil
	case "-buffersize":
		return strconv.Itoa(ch.bufferSize), nil
	case "-error":
		switch {
		case ch.err != nil:
			return ch.err.Error(), nil
		case ch.readErr != nil:
			return ch.readErr.Error(), nil
		case ch.writeErr != nil:
			return ch.writeErr.Error(), nil
		}
		return "", nil
	case "-connecting":
		return FormatBool(ch.pending[slotConnect] != nil), nil
	}
	if ch.state == StateClosed {
		return "", ErrClosed
	}
	return ch.driver.GetOption(ch, name)
}

func invalidOption(name string, value string) error {
	return errors.New(
		"invalid option "+name+" "+strconv.Quote(value),
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpOption),
		errors.WithWrap(ErrInvalidOption),
	)
}

// ParseBool accepts the boolean spellings used by channel options.
func ParseBool(s string) (v bool, ok bool) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
