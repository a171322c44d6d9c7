package history

// ring is a fixed-capacity FIFO. Push overwrites the oldest entry once full.
type ring[T any] struct {
	items []T
	head  int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(item T) {
	capacity := len(r.items)
	if capacity == 0 {
		return
	}
	r.items[(r.head+r.size)%capacity] = item
	if r.size < capacity {
		r.size++
		return
	}
	r.head = (r.head + 1) % capacity
}

// snapshot copies entries oldest first.
func (r *ring[T]) snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}
