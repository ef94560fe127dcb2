package bytebuffers

import (
	"sync"
	"sync/atomic"
)

const (
	minBitSize = 6
	steps      = 20

	minSize = 1 << minBitSize
	maxSize = 1 << (minBitSize + steps - 1)
)

// storage slabs are pooled per power of two size class
var (
	classes     [steps]sync.Pool
	outstanding atomic.Int64
)

// Outstanding reports storage areas handed out by Init and not yet released by Fini.
func Outstanding() int64 {
	return outstanding.Load()
}

func acquire(size int) []byte {
	outstanding.Add(1)
	if size > maxSize {
		return make([]byte, size)
	}
	idx := index(size)
	if v := classes[idx].Get(); v != nil {
		p := *(v.(*[]byte))
		return p[:size]
	}
	return make([]byte, size, minSize<<idx)
}

func release(p []byte) {
	outstanding.Add(-1)
	c := cap(p)
	if c > maxSize || c < minSize {
		return
	}
	idx := index(c)
	if minSize<<idx != c {
		return
	}
	clear(p[:c])
	p = p[:c]
	classes[idx].Put(&p)
}

func index(n int) int {
	n--
	n >>= minBitSize
	idx := 0
	for n > 0 {
		n >>= 1
		idx++
	}
	if idx >= steps {
		idx = steps - 1
	}
	return idx
}
