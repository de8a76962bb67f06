package transport

import "sync"

// Hooks is a set of listeners that can each be removed individually.
// Fire calls listeners outside the lock in registration order, so a listener
// may remove itself (or others) while being called.
type Hooks[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries []hook[T]
}

type hook[T any] struct {
	id uint64
	fn func(T)
}

// Add registers fn and returns the func that removes exactly that
// registration. The returned func is safe to call more than once.
func (h *Hooks[T]) Add(fn func(T)) (remove func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	h.entries = append(h.entries, hook[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hooks[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return
		}
	}
}

// Fire invokes every listener registered at the time of the call.
func (h *Hooks[T]) Fire(v T) {
	h.mu.Lock()
	snapshot := make([]func(T), len(h.entries))
	for i, e := range h.entries {
		snapshot[i] = e.fn
	}
	h.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}

// Len returns the number of registered listeners.
func (h *Hooks[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
