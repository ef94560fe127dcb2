package aio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

type readyEntry struct {
	ch  *Channel
	gen uint32
}

type readyRef struct {
	slot int
	gen  uint32
}

// Table is the dispatch table of one thread: the channels it owns notify
// it through a ready queue drained by the thread's event loop.
//
// Lock order is Channel then Table. Each queued channel holds a reference
// taken by Link; Check hands that reference to the delivery function.
type Table struct {
	mu      sync.Mutex
	id      uint64
	refs    int32
	thread  uint64
	entries []readyEntry
	free    []int
	order   *queue.Queue
	linked  int
	waker   func()
	freed   bool
}

var threadIDs atomic.Uint64

// NewTable returns a table holding one reference for its thread, dropped
// by UnlinkThread.
func NewTable() *Table {
	id := threadIDs.Add(1)
	return &Table{
		id:     id,
		refs:   1,
		thread: id,
		order:  queue.New(),
	}
}

type tableKey struct{}

func WithTable(ctx context.Context, t *Table) context.Context {
	return context.WithValue(ctx, tableKey{}, t)
}

func TableFrom(ctx context.Context) (*Table, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(tableKey{}).(*Table)
	return t, ok && t != nil
}

// CurrentTable returns the table of the thread ctx belongs to, creating a
// thread identity when ctx has none.
func CurrentTable(ctx context.Context) (context.Context, *Table) {
	if t, ok := TableFrom(ctx); ok {
		return ctx, t
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t := NewTable()
	return WithTable(ctx, t), t
}

func (t *Table) ID() uint64 {
	return t.id
}

// Thread is the owning thread id, zero once the thread exited.
func (t *Table) Thread() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.thread
}

// SetWaker installs the function run when the ready queue becomes
// non-empty. It must not block.
func (t *Table) SetWaker(fn func()) {
	t.mu.Lock()
	t.waker = fn
	t.mu.Unlock()
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.linked
}

func (t *Table) Acquire() {
	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		violate("acquire of freed dispatch table %d", t.id)
	}
	t.refs++
	t.mu.Unlock()
}

func (t *Table) Release() {
	t.mu.Lock()
	t.refs--
	if t.refs > 0 {
		t.mu.Unlock()
		return
	}
	if t.freed {
		t.mu.Unlock()
		violate("release of freed dispatch table %d", t.id)
	}
	if t.linked > 0 {
		t.mu.Unlock()
		violate("attempt to free dispatch table %d with channels attached", t.id)
	}
	t.freed = true
	t.waker = nil
	t.entries = nil
	t.free = nil
	t.order = queue.New()
	t.mu.Unlock()
}

// UnlinkThread is the thread exit handler.
func (t *Table) UnlinkThread() {
	t.mu.Lock()
	t.thread = 0
	t.mu.Unlock()
	t.Release()
}

// Attach makes t the owner of ch. ch must be locked.
func (t *Table) Attach(ch *Channel) {
	if ch.owner == t {
		return
	}
	if ch.owner != nil {
		ch.owner.Detach(ch)
	}
	t.Acquire()
	ch.owner = t
}

// Detach clears the owner link. ch must be locked.
func (t *Table) Detach(ch *Channel) {
	if ch.owner != t {
		return
	}
	t.Unlink(ch)
	ch.owner = nil
	t.Release()
}

// Link queues ch for notification unless it is already queued or the
// thread has exited. ch must be locked.
func (t *Table) Link(ch *Channel) bool {
	t.mu.Lock()
	if ch.readySlot >= 0 || t.thread == 0 || t.freed {
		t.mu.Unlock()
		return false
	}
	var slot int
	if n := len(t.free); n > 0 {
		slot = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		slot = len(t.entries)
		t.entries = append(t.entries, readyEntry{})
	}
	gen := t.entries[slot].gen + 1
	t.entries[slot] = readyEntry{ch: ch, gen: gen}
	t.order.Add(readyRef{slot: slot, gen: gen})
	ch.readySlot = slot
	ch.refs++
	wasEmpty := t.linked == 0
	t.linked++
	waker := t.waker
	t.mu.Unlock()
	if wasEmpty && waker != nil {
		waker()
	}
	return true
}

// Unlink removes ch from the ready queue. ch must be locked.
func (t *Table) Unlink(ch *Channel) bool {
	t.mu.Lock()
	slot := ch.readySlot
	if slot < 0 || slot >= len(t.entries) || t.entries[slot].ch != ch {
		t.mu.Unlock()
		return false
	}
	t.clear(slot)
	ch.readySlot = -1
	t.mu.Unlock()
	if ch.refs--; ch.refs <= 0 {
		violate("unlink dropped the last reference of channel %d", ch.id)
	}
	return true
}

// Linked reports whether ch is queued. ch must be locked.
func (t *Table) Linked(ch *Channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := ch.readySlot
	return slot >= 0 && slot < len(t.entries) && t.entries[slot].ch == ch
}

func (t *Table) clear(slot int) {
	t.entries[slot].ch = nil
	t.free = append(t.free, slot)
	t.linked--
}

// Setup is the event loop setup hook: no blocking while channels are
// ready.
func (t *Table) Setup(maxBlock time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.linked > 0 {
		return 0
	}
	return maxBlock
}

// Check is the event loop check hook. It drains the channels queued before
// the call, clearing each ready marker under the table lock and running fn
// outside it. fn owns the link reference and must drop it; nil delivers
// the channel's watch notifications.
func (t *Table) Check(fn func(*Channel)) (n int) {
	if fn == nil {
		fn = (*Channel).deliver
	}
	t.mu.Lock()
	pending := t.order.Length()
	t.mu.Unlock()
	for ; pending > 0; pending-- {
		t.mu.Lock()
		if t.order.Length() == 0 {
			t.mu.Unlock()
			break
		}
		ref := t.order.Remove().(readyRef)
		entry := t.entries[ref.slot]
		if entry.ch == nil || entry.gen != ref.gen {
			t.mu.Unlock()
			continue
		}
		ch := entry.ch
		t.clear(ref.slot)
		ch.readySlot = -1
		t.mu.Unlock()
		fn(ch)
		n++
	}
	t.mu.Lock()
	again := t.linked > 0 && t.thread != 0
	waker := t.waker
	t.mu.Unlock()
	if again && waker != nil {
		waker()
	}
	return
}
