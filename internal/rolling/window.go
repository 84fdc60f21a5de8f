// Package rolling provides a fixed-capacity ordered history buffer with
// overwrite-on-full semantics. Index 0 is always the most recent element.
package rolling

// Window is a generic ring buffer over T. Once full, adding a new element
// silently evicts the oldest. The zero value is not usable; construct with
// New.
type Window[T any] struct {
	buf  []T
	head int // index of the most recent element
	size int
}

// New returns a Window holding at most capacity elements. Capacities below
// one are clamped to one.
func New[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity), head: -1}
}

// Add pushes v as the most recent element, evicting the oldest when full.
func (w *Window[T]) Add(v T) {
	w.head = (w.head + 1) % len(w.buf)
	w.buf[w.head] = v
	if w.size < len(w.buf) {
		w.size++
	}
}

// At returns the element i steps back from the most recent one; At(0) is the
// latest. The second return is false when i is out of range.
func (w *Window[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= w.size {
		return zero, false
	}
	idx := (w.head - i + len(w.buf)) % len(w.buf)
	return w.buf[idx], true
}

// Latest returns the most recent element.
func (w *Window[T]) Latest() (T, bool) {
	return w.At(0)
}

// Len returns the number of elements currently held.
func (w *Window[T]) Len() int { return w.size }

// Cap returns the fixed capacity.
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full reports whether the next Add will evict.
func (w *Window[T]) Full() bool { return w.size == len(w.buf) }

// Values returns the held elements ordered most-recent-first.
func (w *Window[T]) Values() []T {
	out := make([]T, 0, w.size)
	for i := 0; i < w.size; i++ {
		v, _ := w.At(i)
		out = append(out, v)
	}
	return out
}

// Reset empties the window without releasing the backing storage.
func (w *Window[T]) Reset() {
	w.head = -1
	w.size = 0
}
