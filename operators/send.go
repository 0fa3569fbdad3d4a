// Send operator: the end of a pipeline
package operators

import (
	log "github.com/sirupsen/logrus"

	"github.com/netsys/netbricks/native"
	"github.com/netsys/netbricks/ports"
)

// SendBatch drains its source every tick and settles every mbuf into one
// of two bins: transmit (ok and emitted packets) or free (dropped and
// aborted ones). Together with the burst bound this guarantees mbuf
// conservation per tick.
type SendBatch struct {
	source    Batch
	port      ports.PacketTx
	pool      *native.Mempool
	transmitQ []*native.Mbuf
	dropQ     []*native.Mbuf
	aborted   int
	deps      []int
}

// NewSend terminates a pipeline on a transmit endpoint.
func NewSend(source Batch, port ports.PacketTx) *SendBatch {
	return &SendBatch{
		source:    source,
		port:      port,
		pool:      native.DefaultPool(),
		transmitQ: make([]*native.Mbuf, 0, BatchSize),
		dropQ:     make([]*native.Mbuf, 0, BatchSize),
	}
}

// WithDependencies records scheduler handles that must run earlier in the
// same tick.
func (b *SendBatch) WithDependencies(deps ...int) *SendBatch {
	b.deps = append(b.deps, deps...)
	return b
}

// Execute drives the whole chain for one tick.
func (b *SendBatch) Execute() {
	b.source.Receive()

	b.aborted = 0
	for {
		pkt, perr, ok := b.source.Next()
		if !ok {
			break
		}
		switch {
		case perr == nil:
			b.transmitQ = append(b.transmitQ, pkt.Mbuf())
		case perr.Disposition == Emitted:
			b.transmitQ = append(b.transmitQ, perr.Mbuf)
		case perr.Disposition == Aborted:
			log.WithError(perr.Err).Warn("packet aborted")
			b.aborted++
			b.dropQ = append(b.dropQ, perr.Mbuf)
		default:
			b.dropQ = append(b.dropQ, perr.Mbuf)
		}
	}

	if len(b.transmitQ) > 0 {
		pending := b.transmitQ
		for len(pending) > 0 {
			// The driver accepts the whole burst eventually; partial
			// sends just loop on the remainder.
			sent, err := b.port.Send(pending)
			if err != nil {
				log.WithError(err).Error("transmit failed, freeing burst")
				b.pool.FreeBulk(pending)
				break
			}
			pending = pending[sent:]
		}
		b.transmitQ = b.transmitQ[:0]
	}

	if len(b.dropQ) > 0 {
		if q, ok := b.port.(*ports.PortQueue); ok {
			q.AccountDrops(len(b.dropQ) - b.aborted)
			q.AccountAborts(b.aborted)
		}
		b.pool.FreeBulk(b.dropQ)
		b.dropQ = b.dropQ[:0]
	}
}

// Dependencies implements the scheduler task interface.
func (b *SendBatch) Dependencies() []int { return b.deps }
