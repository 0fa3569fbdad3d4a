// Queue-fed batches
package operators

import (
	"github.com/netsys/netbricks/packets"
	"github.com/netsys/netbricks/queues"
)

// singleThreadedQueue is a tiny deque shared between group_by and its
// per-key pipelines. Single-threaded by construction: a pipeline never
// crosses cores.
type singleThreadedQueue struct {
	items []packets.Packet
}

func newSingleThreadedQueue(capacity int) *singleThreadedQueue {
	return &singleThreadedQueue{items: make([]packets.Packet, 0, capacity)}
}

func (q *singleThreadedQueue) enqueue(p packets.Packet) {
	q.items = append(q.items, p)
}

func (q *singleThreadedQueue) dequeue() packets.Packet {
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	return p
}

// QueueBatch heads a sub-pipeline fed by a single-threaded queue. Receive
// is a no-op: items are pushed by the upstream operator.
type QueueBatch struct {
	queue *singleThreadedQueue
}

func (b *QueueBatch) Receive() {}

func (b *QueueBatch) Next() (packets.Packet, *PacketError, bool) {
	if p := b.queue.dequeue(); p != nil {
		return p, nil, true
	}
	return nil, nil, false
}

// NewMpscBatch heads a pipeline with packets injected by side pipelines
// through an MPSC ring: crafted replies, re-routed packets, generated
// traffic.
func NewMpscBatch(consumer *queues.MpscConsumer) *ReceiveBatch {
	return NewReceive(consumer)
}
