// Package exits keeps ordered exit handlers for a process or a thread.
//
// Handlers run last registered first, and a Registry runs at most once.
package exits

import (
	"sync"
)

type Handler func()

type Handle uint64

type entry struct {
	id Handle
	fn Handler
}

type Registry struct {
	mu       sync.Mutex
	seq      Handle
	handlers []entry
	ran      bool
}

// Register adds fn. If the registry already ran, fn runs immediately.
func (r *Registry) Register(fn Handler) Handle {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		fn()
		return 0
	}
	r.seq++
	id := r.seq
	r.handlers = append(r.handlers, entry{id: id, fn: fn})
	r.mu.Unlock()
	return id
}

func (r *Registry) Unregister(id Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.handlers {
		if e.id == id {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Ran() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ran
}

func (r *Registry) Run() {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return
	}
	r.ran = true
	handlers := r.handlers
	r.handlers = nil
	r.mu.Unlock()
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i].fn()
	}
}

var process Registry

// Register adds a process exit handler, run by Run.
func Register(fn Handler) Handle {
	return process.Register(fn)
}

func Unregister(id Handle) bool {
	return process.Unregister(id)
}

// Run executes the process exit handlers. Later calls do nothing.
func Run() {
	process.Run()
}
