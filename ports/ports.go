// Port abstractions between the driver and the operator pipeline
package ports

import (
	"fmt"
	"sync/atomic"

	"github.com/netsys/netbricks/native"
)

// PacketRx is the receive side of a port or queue.
type PacketRx interface {
	// Recv fills pkts with received mbufs and returns the count. The
	// driver never errors on the fast path; a non-nil error means the
	// port is unusable.
	Recv(pkts []*native.Mbuf) (int, error)
}

// PacketTx is the transmit side of a port or queue.
type PacketTx interface {
	// Send transmits a prefix of pkts and returns how many were accepted.
	// Ownership of accepted mbufs transfers to the driver.
	Send(pkts []*native.Mbuf) (int, error)
}

// PortStats counts packets through one direction of a queue. Updated from
// the owning core, read from the control plane.
type PortStats struct {
	Packets atomic.Uint64
	Bytes   atomic.Uint64
}

// QueueStats aggregates the counters a port queue maintains per tick.
type QueueStats struct {
	Rx      PortStats
	Tx      PortStats
	Dropped atomic.Uint64
	Aborted atomic.Uint64
}

// PortQueue binds one receive and one transmit queue of a port to a core.
// It is the endpoint a pipeline receives from and sends to.
type PortQueue struct {
	Port  *PmdPort
	rxq   int
	txq   int
	stats QueueStats
}

// Rxq returns the receive queue index.
func (q *PortQueue) Rxq() int { return q.rxq }

// Txq returns the transmit queue index.
func (q *PortQueue) Txq() int { return q.txq }

// Stats exposes the queue counters.
func (q *PortQueue) Stats() *QueueStats { return &q.stats }

// Recv pulls a burst from the port's receive queue.
func (q *PortQueue) Recv(pkts []*native.Mbuf) (int, error) {
	n, err := q.Port.backend.RecvQueue(q.rxq, pkts)
	if n > 0 {
		var bytes uint64
		for _, m := range pkts[:n] {
			bytes += uint64(m.DataLen())
		}
		q.stats.Rx.Packets.Add(uint64(n))
		q.stats.Rx.Bytes.Add(bytes)
	}
	return n, err
}

// Send pushes a burst to the port's transmit queue.
func (q *PortQueue) Send(pkts []*native.Mbuf) (int, error) {
	var bytes uint64
	for _, m := range pkts {
		bytes += uint64(m.DataLen())
	}
	n, err := q.Port.backend.SendQueue(q.txq, pkts)
	if n > 0 {
		q.stats.Tx.Packets.Add(uint64(n))
		q.stats.Tx.Bytes.Add(bytes)
	}
	return n, err
}

// AccountDrops records mbufs freed on the drop path at the terminus.
func (q *PortQueue) AccountDrops(n int) {
	q.stats.Dropped.Add(uint64(n))
}

// AccountAborts records mbufs freed after pipeline aborts.
func (q *PortQueue) AccountAborts(n int) {
	q.stats.Aborted.Add(uint64(n))
}

func (q *PortQueue) String() string {
	return fmt.Sprintf("%s rxq %d txq %d", q.Port.Name(), q.rxq, q.txq)
}
