// Multi-producer single-consumer mbuf ring
package queues

import (
	"sync/atomic"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

// mpscSlot pairs a stored mbuf with a sequence stamp so concurrent
// producers can claim slots without locks.
type mpscSlot struct {
	seq atomic.Uint64
	m   *native.Mbuf
}

// MpscQueue is a bounded lock-free ring accepting mbufs from any number of
// producers, drained by exactly one consumer. Ordering is FIFO per
// producer.
type MpscQueue struct {
	slots []mpscSlot
	mask  uint64
	head  atomic.Uint64
	tail  atomic.Uint64
}

// NewMpsc creates a ring with the given capacity.
func NewMpsc(size int) (*MpscQueue, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, common.InvalidRingSizeError{Size: size}
	}
	q := &MpscQueue{
		slots: make([]mpscSlot, size),
		mask:  uint64(size - 1),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q, nil
}

// Cap returns the ring capacity.
func (q *MpscQueue) Cap() int { return len(q.slots) }

// Enqueue adds one mbuf. Returns false when the ring is full; the caller
// keeps ownership and is expected to free the mbuf.
func (q *MpscQueue) Enqueue(m *native.Mbuf) bool {
	for {
		tail := q.tail.Load()
		slot := &q.slots[tail&q.mask]
		seq := slot.seq.Load()
		switch {
		case seq == tail:
			if q.tail.CompareAndSwap(tail, tail+1) {
				slot.m = m
				slot.seq.Store(tail + 1)
				return true
			}
		case seq < tail:
			return false
		}
	}
}

// Dequeue removes one mbuf, or returns nil when the ring is empty. Must
// only be called from the single consumer.
func (q *MpscQueue) Dequeue() *native.Mbuf {
	head := q.head.Load()
	slot := &q.slots[head&q.mask]
	if slot.seq.Load() != head+1 {
		return nil
	}
	m := slot.m
	slot.m = nil
	slot.seq.Store(head + uint64(len(q.slots)))
	q.head.Store(head + 1)
	return m
}

// DequeueBulk fills out with queued mbufs and returns the count removed.
func (q *MpscQueue) DequeueBulk(out []*native.Mbuf) int {
	for i := range out {
		m := q.Dequeue()
		if m == nil {
			return i
		}
		out[i] = m
	}
	return len(out)
}

// MpscProducer is the enqueue side of an MPSC pair. Safe for concurrent
// use from any core.
type MpscProducer struct {
	q    *MpscQueue
	pool *native.Mempool
}

// Enqueue hands an mbuf to the consumer pipeline. When the ring is full
// the mbuf is freed and false is returned.
func (p *MpscProducer) Enqueue(m *native.Mbuf) bool {
	if p.q.Enqueue(m) {
		return true
	}
	p.pool.Free(m)
	return false
}

// MpscConsumer is the dequeue side of an MPSC pair. It satisfies the port
// receive interface so it can head a pipeline.
type MpscConsumer struct {
	q *MpscQueue
}

// Recv drains queued mbufs into pkts.
func (c *MpscConsumer) Recv(pkts []*native.Mbuf) (int, error) {
	return c.q.DequeueBulk(pkts), nil
}

// NewMpscPair creates a connected producer/consumer pair backed by a ring
// of the given capacity.
func NewMpscPair(size int) (*MpscProducer, *MpscConsumer, error) {
	q, err := NewMpsc(size)
	if err != nil {
		return nil, nil, err
	}
	return &MpscProducer{q: q, pool: native.DefaultPool()}, &MpscConsumer{q: q}, nil
}
