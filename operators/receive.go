// Receive operator: the start of a pipeline
package operators

import (
	"github.com/netsys/netbricks/native"
	"github.com/netsys/netbricks/packets"
)

// rx is the receive side a batch can pull bursts from: a port queue, an
// SPSC ring, or an MPSC consumer.
type rx interface {
	Recv(pkts []*native.Mbuf) (int, error)
}

// ReceiveBatch pulls up to BatchSize mbufs per tick and yields them as
// raw packets.
type ReceiveBatch struct {
	port    rx
	buffers []*native.Mbuf
	index   int
}

// NewReceive creates the head of a pipeline over a receive endpoint.
func NewReceive(port rx) *ReceiveBatch {
	return &ReceiveBatch{
		port:    port,
		buffers: make([]*native.Mbuf, 0, BatchSize),
	}
}

// Receive refills the internal burst buffer from the port.
func (b *ReceiveBatch) Receive() {
	b.buffers = b.buffers[:cap(b.buffers)]
	// The driver burst call never errors; a failed endpoint yields zero.
	n, _ := b.port.Recv(b.buffers)
	b.buffers = b.buffers[:n]
	b.index = 0
}

// Next yields the burst's mbufs one by one, then clears the buffer so no
// mbuf stays referenced across ticks.
func (b *ReceiveBatch) Next() (packets.Packet, *PacketError, bool) {
	if b.index < len(b.buffers) {
		m := b.buffers[b.index]
		b.index++
		return packets.RawFromMbuf(m), nil, true
	}
	b.buffers = b.buffers[:0]
	b.index = 0
	return nil, nil, false
}
