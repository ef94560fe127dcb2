package bytebuffers

import (
	"github.com/brickingsoft/errors"
)

// MaxCapacity bounds a single buffer; larger requests fail with ErrAllocate.
const MaxCapacity = 1 << 30

var (
	ErrAllocate   = errors.Define("bytebuffers: allocate failed")
	ErrOutOfRange = errors.Define("bytebuffers: out of range")
)

func IsAllocate(err error) bool {
	return errors.Is(err, ErrAllocate)
}

// DataBuffer is a fixed capacity byte area with a sliding read window.
//
// The readable window is storage[begin:begin+length]. A zero value, or a
// buffer initialized with capacity 0, has no storage and is empty.
type DataBuffer struct {
	storage  []byte
	capacity int
	begin    int
	length   int
}

// Init prepares the buffer to hold capacity bytes and returns the storage.
// A nil result with a nil error means capacity 0 was requested.
func (b *DataBuffer) Init(capacity int) (p []byte, err error) {
	b.begin = 0
	b.length = 0
	b.storage = nil
	b.capacity = 0
	if capacity == 0 {
		return
	}
	if capacity < 0 || capacity > MaxCapacity {
		err = errors.New(
			"init failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(ErrAllocate),
		)
		return
	}
	b.storage = acquire(capacity)
	b.capacity = capacity
	p = b.storage
	return
}

// Fini releases the storage. The buffer must be re-initialized before reuse.
func (b *DataBuffer) Fini() {
	if b.storage != nil {
		release(b.storage)
	}
	b.storage = nil
	b.capacity = 0
	b.begin = 0
	b.length = 0
}

func (b *DataBuffer) Cap() int {
	return b.capacity
}

func (b *DataBuffer) Len() int {
	return b.length
}

func (b *DataBuffer) Begin() int {
	return b.begin
}

func (b *DataBuffer) Empty() bool {
	return b.length == 0
}

// Bytes returns the readable window without consuming it.
func (b *DataBuffer) Bytes() []byte {
	if b.storage == nil {
		return nil
	}
	return b.storage[b.begin : b.begin+b.length]
}

// Free returns the writable tail after the readable window.
func (b *DataBuffer) Free() []byte {
	if b.storage == nil {
		return nil
	}
	return b.storage[b.begin+b.length : b.capacity]
}

// Commit grows the readable window by n bytes written into Free.
func (b *DataBuffer) Commit(n int) error {
	if n < 0 || b.begin+b.length+n > b.capacity {
		return errors.New(
			"commit failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(ErrOutOfRange),
		)
	}
	b.length += n
	return nil
}

// Fill copies as much of p as fits into Free and commits it.
func (b *DataBuffer) Fill(p []byte) (n int) {
	n = copy(b.Free(), p)
	b.length += n
	return
}

// Move copies up to len(dst) bytes out of the readable window and consumes them.
func (b *DataBuffer) Move(dst []byte) (n int) {
	n = len(dst)
	if b.length < n {
		n = b.length
	}
	if b.storage != nil {
		copy(dst, b.storage[b.begin:b.begin+n])
	}
	b.begin += n
	b.length -= n
	return
}

// Discard consumes up to n bytes without copying them.
func (b *DataBuffer) Discard(n int) int {
	if n < 0 {
		n = 0
	}
	if b.length < n {
		n = b.length
	}
	b.begin += n
	b.length -= n
	return n
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "bytebuffers"
)
