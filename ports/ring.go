// Software loopback port over SPSC rings
package ports

import (
	"github.com/netsys/netbricks/native"
	"github.com/netsys/netbricks/queues"
)

// ringQueueSize bounds the in-flight packets of one software queue.
const ringQueueSize = 1024

// ringBackend is a port whose queues are SPSC rings. In loopback mode
// each tx queue feeds the rx queue of the same index, so a pipeline's
// output can be observed (or re-received) without hardware. Without
// loopback the rings are open-ended: tests push into rx and pop from tx.
type ringBackend struct {
	pool *native.Mempool
	rx   []*queues.SpscQueue
	tx   []*queues.SpscQueue
}

func newRingBackend(pool *native.Mempool, rxqs, txqs int, loopback bool) (*ringBackend, error) {
	b := &ringBackend{pool: pool}
	for i := 0; i < rxqs; i++ {
		q, err := queues.NewSpsc(ringQueueSize)
		if err != nil {
			return nil, err
		}
		b.rx = append(b.rx, q)
	}
	if loopback {
		for i := 0; i < txqs; i++ {
			b.tx = append(b.tx, b.rx[i%len(b.rx)])
		}
		return b, nil
	}
	for i := 0; i < txqs; i++ {
		q, err := queues.NewSpsc(ringQueueSize)
		if err != nil {
			return nil, err
		}
		b.tx = append(b.tx, q)
	}
	return b, nil
}

func (b *ringBackend) RecvQueue(rxq int, pkts []*native.Mbuf) (int, error) {
	return b.rx[rxq].DequeueBulk(pkts), nil
}

func (b *ringBackend) SendQueue(txq int, pkts []*native.Mbuf) (int, error) {
	n := b.tx[txq].EnqueueBulk(pkts)
	// The ring accepted what fits; the rest is dropped here so the
	// terminus sees a full send.
	if n < len(pkts) {
		b.pool.FreeBulk(pkts[n:])
	}
	return len(pkts), nil
}

// InjectRx seeds a receive queue with prepared packets. Test hook.
func (b *ringBackend) InjectRx(rxq int, pkts []*native.Mbuf) int {
	return b.rx[rxq].EnqueueBulk(pkts)
}

// DrainTx removes transmitted packets from a tx queue. Test hook; only
// meaningful for non-loopback rings.
func (b *ringBackend) DrainTx(txq int, out []*native.Mbuf) int {
	return b.tx[txq].DequeueBulk(out)
}

func (b *ringBackend) MacAddr() [6]byte {
	return [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
}

func (b *ringBackend) Close() error { return nil }

// InjectRx seeds the port's receive queue with prepared packets, if the
// backend supports it.
func (p *PmdPort) InjectRx(rxq int, pkts []*native.Mbuf) int {
	if rb, ok := p.backend.(*ringBackend); ok {
		return rb.InjectRx(rxq, pkts)
	}
	return 0
}

// DrainTx removes transmitted packets from the port's tx queue, if the
// backend supports it.
func (p *PmdPort) DrainTx(txq int, out []*native.Mbuf) int {
	if rb, ok := p.backend.(*ringBackend); ok {
		return rb.DrainTx(txq, out)
	}
	return 0
}
