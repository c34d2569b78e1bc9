package tracking

// Ring is a fixed-capacity FIFO. Pushing into a full ring evicts the oldest
// element. The zero value is unusable; create rings with NewRing.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// NewRing creates a ring holding at most capacity elements. Capacities below
// one are raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(capacity, 1))}
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *Ring[T]) Len() int { return r.size }
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element counting from the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("tracking: ring index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element and false when the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.size - 1), true
}

// Items returns a copy ordered oldest to newest.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range r.size {
		out[i] = r.At(i)
	}
	return out
}

// Resize changes the capacity, dropping the oldest elements that no longer fit.
func (r *Ring[T]) Resize(capacity int) {
	capacity = max(capacity, 1)
	if capacity == len(r.buf) {
		return
	}
	items := r.Items()
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	r.buf = make([]T, capacity)
	copy(r.buf, items)
	r.head = 0
	r.size = len(items)
}
