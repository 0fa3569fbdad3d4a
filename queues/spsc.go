// Single-producer single-consumer mbuf ring
package queues

import (
	"sync/atomic"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

// SpscQueue is a bounded lock-free ring for handing mbufs from exactly one
// producer core to exactly one consumer core. Capacity must be a power of
// two; one slot is kept empty to distinguish full from empty.
type SpscQueue struct {
	ring []*native.Mbuf
	mask uint32
	head atomic.Uint32
	tail atomic.Uint32
}

// NewSpsc creates a ring with the given capacity.
func NewSpsc(size int) (*SpscQueue, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, common.InvalidRingSizeError{Size: size}
	}
	return &SpscQueue{
		ring: make([]*native.Mbuf, size),
		mask: uint32(size - 1),
	}, nil
}

// Cap returns the ring capacity.
func (q *SpscQueue) Cap() int { return len(q.ring) }

// Len returns the number of queued mbufs.
func (q *SpscQueue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Enqueue adds one mbuf. Returns false when the ring is full; the caller
// keeps ownership and is expected to free the mbuf.
func (q *SpscQueue) Enqueue(m *native.Mbuf) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= uint32(len(q.ring))-1 {
		return false
	}
	q.ring[tail&q.mask] = m
	q.tail.Store(tail + 1)
	return true
}

// EnqueueBulk adds as many mbufs as fit and returns the count accepted.
func (q *SpscQueue) EnqueueBulk(ms []*native.Mbuf) int {
	tail := q.tail.Load()
	room := uint32(len(q.ring)) - 1 - (tail - q.head.Load())
	n := len(ms)
	if uint32(n) > room {
		n = int(room)
	}
	for i := 0; i < n; i++ {
		q.ring[(tail+uint32(i))&q.mask] = ms[i]
	}
	q.tail.Store(tail + uint32(n))
	return n
}

// Dequeue removes one mbuf, or returns nil when the ring is empty.
func (q *SpscQueue) Dequeue() *native.Mbuf {
	head := q.head.Load()
	if head == q.tail.Load() {
		return nil
	}
	m := q.ring[head&q.mask]
	q.ring[head&q.mask] = nil
	q.head.Store(head + 1)
	return m
}

// DequeueBulk fills out with queued mbufs and returns the count removed.
func (q *SpscQueue) DequeueBulk(out []*native.Mbuf) int {
	head := q.head.Load()
	avail := q.tail.Load() - head
	n := len(out)
	if uint32(n) > avail {
		n = int(avail)
	}
	for i := 0; i < n; i++ {
		idx := (head + uint32(i)) & q.mask
		out[i] = q.ring[idx]
		q.ring[idx] = nil
	}
	q.head.Store(head + uint32(n))
	return n
}

// Recv implements the receive side of a port queue so an SpscQueue can
// feed a pipeline directly.
func (q *SpscQueue) Recv(pkts []*native.Mbuf) (int, error) {
	return q.DequeueBulk(pkts), nil
}
