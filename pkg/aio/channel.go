package aio

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"
)

type Flags uint32

const (
	// FlagBlockedForIO is set while a caller waits in AwaitCompletion.
	FlagBlockedForIO Flags = 1 << iota
	// FlagEOF is sticky once the peer finished sending.
	FlagEOF
)

type State int32

const (
	StateUninitialized State = iota
	StateOpen
	StateReading
	StateWriting
	StateConnecting
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateConnecting:
		return "connecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type Events uint8

const (
	EventReadable Events = 1 << iota
	EventWritable
)

const (
	slotRead = iota
	slotWrite
	slotConnect
	slotCount
)

const DefaultBufferSize = 4096

type ChannelOptions struct {
	Blocking   bool
	BufferSize int
	Logger     *logiface.Logger[logiface.Event]
}

// Channel is a reference counted, lockable I/O endpoint. Its behavior per
// kind comes from a Driver.
//
// Methods documented as "ch must be locked" are for drivers and the
// dispatcher; everything else takes the lock itself.
type Channel struct {
	mu           sync.Mutex
	cond         sync.Cond
	id           uint64
	driver       Driver
	subsystem    *Subsystem
	logger       *logiface.Logger[logiface.Event]
	refs         int32
	flags        Flags
	state        State
	pending      [slotCount]*Buffer
	input        *queue.Queue
	owner        *Table
	readySlot    int
	watch        Events
	handler      func(Events)
	onAccept     func(*Channel)
	accepted     []*Channel
	blocking     bool
	bufferSize   int
	err          error
	readErr      error
	writeErr     error
	bytesRead    uint64
	bytesWritten uint64
	lastWrite    int
	freed        bool
}

var channelIDs atomic.Uint64

// NewChannel builds a channel with one reference owned by the caller. A nil
// subsystem selects the process subsystem.
func NewChannel(sub *Subsystem, driver Driver, options ChannelOptions) (ch *Channel, err error) {
	if sub == nil {
		sub = Process()
	}
	size := options.BufferSize
	if size <= 0 {
		size = driver.AllocationSize()
	}
	if size <= 0 {
		size = DefaultBufferSize
	}
	logger := options.Logger
	if logger == nil {
		logger = sub.Logger()
	}
	ch = &Channel{
		id:         channelIDs.Add(1),
		driver:     driver,
		subsystem:  sub,
		logger:     logger,
		refs:       1,
		state:      StateUninitialized,
		input:      queue.New(),
		readySlot:  -1,
		blocking:   options.Blocking,
		bufferSize: size,
	}
	ch.cond.L = &ch.mu
	if err = driver.Initialize(ch); err != nil {
		ch = nil
		return
	}
	ch.state = StateOpen
	return
}

func (ch *Channel) ID() uint64 {
	return ch.id
}

func (ch *Channel) Driver() Driver {
	return ch.driver
}

func (ch *Channel) Subsystem() *Subsystem {
	return ch.subsystem
}

func (ch *Channel) Lock() {
	ch.mu.Lock()
}

func (ch *Channel) Unlock() {
	ch.mu.Unlock()
}

func (ch *Channel) Acquire() {
	ch.mu.Lock()
	ch.refs++
	ch.mu.Unlock()
}

func (ch *Channel) Release() {
	ch.mu.Lock()
	ch.Drop()
}

// Drop decrements the reference count. ch must be locked; it is unlocked
// on return. The last reference finalizes the driver.
func (ch *Channel) Drop() {
	ch.refs--
	if ch.refs > 0 {
		ch.mu.Unlock()
		return
	}
	if ch.freed {
		ch.mu.Unlock()
		violate("release of freed channel %d", ch.id)
	}
	if ch.owner != nil {
		ch.mu.Unlock()
		violate("attempt to free channel %d still attached to a dispatch table", ch.id)
	}
	if ch.readySlot >= 0 {
		ch.mu.Unlock()
		violate("attempt to free channel %d linked into a ready queue", ch.id)
	}
	ch.freed = true
	ch.state = StateClosed
	ch.driver.Finalize(ch)
	ch.drainInput()
	accepted := ch.accepted
	ch.accepted = nil
	ch.mu.Unlock()
	for _, a := range accepted {
		_ = a.Close()
	}
}

// Refs reports the reference count. ch must be locked.
func (ch *Channel) Refs() int32 {
	return ch.refs
}

// Flags reports the channel flags. ch must be locked.
func (ch *Channel) Flags() Flags {
	return ch.flags
}

// AwaitCompletion blocks until WakeAfterCompletion. ch must be locked and
// is locked again on return. Callers re-check their condition in a loop.
func (ch *Channel) AwaitCompletion() {
	ch.flags |= FlagBlockedForIO
	ch.cond.Wait()
}

// WakeAfterCompletion wakes the callers blocked in AwaitCompletion, if
// any. ch must be locked.
func (ch *Channel) WakeAfterCompletion() bool {
	if ch.flags&FlagBlockedForIO == 0 {
		return false
	}
	ch.flags &^= FlagBlockedForIO
	ch.cond.Broadcast()
	return true
}

// State reports the logical state. ch must be locked.
func (ch *Channel) State() State {
	if ch.state != StateOpen {
		return ch.state
	}
	switch {
	case ch.pending[slotConnect] != nil:
		return StateConnecting
	case ch.pending[slotWrite] != nil:
		return StateWriting
	case ch.pending[slotRead] != nil:
		return StateReading
	default:
		return StateOpen
	}
}

// Pending returns the in-flight buffer for op's direction. ch must be
// locked.
func (ch *Channel) Pending(op Operation) *Buffer {
	return ch.pending[op.slot()]
}

// Outstanding lists every in-flight buffer. ch must be locked.
func (ch *Channel) Outstanding() []*Buffer {
	var bufs []*Buffer
	for _, buf := range ch.pending {
		if buf != nil {
			bufs = append(bufs, buf)
		}
	}
	return bufs
}

// Owner returns the dispatch table the channel is attached to. ch must be
// locked.
func (ch *Channel) Owner() *Table {
	return ch.owner
}

// SetLogger replaces the channel logger. ch must be locked.
func (ch *Channel) SetLogger(logger *logiface.Logger[logiface.Event]) {
	ch.logger = logger
}

func (ch *Channel) Logger() *logiface.Logger[logiface.Event] {
	return ch.logger
}

type Status struct {
	State        State
	BytesRead    uint64
	BytesWritten uint64
	LastWrite    int
	Buffered     int
	Outstanding  int
	EOF          bool
}

func (ch *Channel) Status() Status {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	buffered := 0
	for i := 0; i < ch.input.Length(); i++ {
		buffered += ch.input.Get(i).(*Buffer).data.Len()
	}
	return Status{
		State:        ch.State(),
		BytesRead:    ch.bytesRead,
		BytesWritten: ch.bytesWritten,
		LastWrite:    ch.lastWrite,
		Buffered:     buffered,
		Outstanding:  len(ch.Outstanding()),
		EOF:          ch.flags&FlagEOF != 0,
	}
}

func (ch *Channel) usable() error {
	switch ch.state {
	case StateOpen:
		return nil
	case StateError:
		return ch.err
	default:
		return ErrClosed
	}
}

func (ch *Channel) drainInput() {
	for ch.input.Length() > 0 {
		ch.input.Remove().(*Buffer).Release()
	}
}

func (ch *Channel) levelEvents() (events Events) {
	if ch.input.Length() > 0 || ch.flags&FlagEOF != 0 || ch.readErr != nil || ch.state == StateError {
		events |= EventReadable
	}
	if ch.state == StateOpen && ch.pending[slotWrite] == nil && ch.pending[slotConnect] == nil {
		events |= EventWritable
	}
	return
}
