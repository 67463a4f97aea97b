// Package ringbuf provides a fixed-capacity circular window with a write
// cursor and a count. The arena is allocated once; Push never reallocates.
// A Window is not safe for concurrent use.
package ringbuf

import (
	"errors"
	"fmt"
)

// ErrBadState is returned by Load when the raw state is not one a Window
// could have produced.
var ErrBadState = errors.New("ringbuf: inconsistent window state")

// Window keeps the last Cap() values pushed.
type Window[T any] struct {
	buf   []T
	idx   int // next slot to write
	count int // values held, <= len(buf)
}

// New creates a window. capacity must be positive.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("ringbuf: capacity %d < 1", capacity))
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push writes v into the next slot. When the window was already full the
// overwritten value is returned with evicted=true.
func (w *Window[T]) Push(v T) (old T, evicted bool) {
	if w.count == len(w.buf) {
		old, evicted = w.buf[w.idx], true
	} else {
		w.count++
	}
	w.buf[w.idx] = v
	w.idx++
	if w.idx == len(w.buf) {
		w.idx = 0
	}
	return old, evicted
}

// Oldest returns the value the next Push will evict, if the window is full.
func (w *Window[T]) Oldest() (T, bool) {
	if w.count < len(w.buf) {
		var zero T
		return zero, false
	}
	return w.buf[w.idx], true
}

// First returns the oldest value held, full or not.
func (w *Window[T]) First() (T, bool) {
	if w.count == 0 {
		var zero T
		return zero, false
	}
	return w.buf[w.start()], true
}

// At returns the i-th oldest value, 0 <= i < Len().
func (w *Window[T]) At(i int) T {
	if i < 0 || i >= w.count {
		panic(fmt.Sprintf("ringbuf: index %d out of range [0,%d)", i, w.count))
	}
	return w.buf[(w.start()+i)%len(w.buf)]
}

// Slot returns the physical slot the next Push writes to.
func (w *Window[T]) Slot() int { return w.idx }

// Get returns the value stored in physical slot s.
func (w *Window[T]) Get(s int) T { return w.buf[s] }

// Len returns the number of values held.
func (w *Window[T]) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full reports whether the next Push evicts a value.
func (w *Window[T]) Full() bool { return w.count == len(w.buf) }

// Reset empties the window without reallocating.
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.idx = 0
	w.count = 0
}

// Raw returns a copy of the arena in physical order plus the cursor and
// count, enough to rebuild the window with Load.
func (w *Window[T]) Raw() (buf []T, idx, count int) {
	buf = make([]T, len(w.buf))
	copy(buf, w.buf)
	return buf, w.idx, w.count
}

// Load replaces the window state with one captured by Raw. The capacity
// must match; nothing is modified when the state is rejected.
func (w *Window[T]) Load(buf []T, idx, count int) error {
	switch {
	case len(buf) != len(w.buf):
		return fmt.Errorf("%w: %d slots, want %d", ErrBadState, len(buf), len(w.buf))
	case idx < 0 || idx >= len(w.buf):
		return fmt.Errorf("%w: cursor %d", ErrBadState, idx)
	case count < 0 || count > len(w.buf):
		return fmt.Errorf("%w: count %d", ErrBadState, count)
	case count < len(w.buf) && idx != count:
		// a window that never wrapped has its cursor right after the last value
		return fmt.Errorf("%w: cursor %d with count %d", ErrBadState, idx, count)
	}
	copy(w.buf, buf)
	w.idx = idx
	w.count = count
	return nil
}

func (w *Window[T]) start() int {
	if w.count < len(w.buf) {
		return 0
	}
	return w.idx
}
