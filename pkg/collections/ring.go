package collections

// Ring is an unbounded FIFO backed by a circular buffer that doubles when
// full.
type Ring[T any] struct {
	buf        []T
	head, size int
}

// NewRing creates a ring with the given initial capacity.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(capacity, 1))}
}

// Push appends v at the tail.
func (r *Ring[T]) Push(v T) {
	if r.size == len(r.buf) {
		grown := make([]T, 2*len(r.buf))
		n := copy(grown, r.buf[r.head:])
		copy(grown[n:], r.buf[:r.head])
		r.buf, r.head = grown, 0
	}
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
}

// Pop removes and returns the head. ok is false when the ring is empty.
func (r *Ring[T]) Pop() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	v = r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

// Len returns the number of queued values.
func (r *Ring[T]) Len() int {
	return r.size
}
