// Virtual allocate-on-receive port for tests and benchmarks
package ports

import (
	"github.com/netsys/netbricks/native"
)

// virtualPacketSize is the data length of packets minted by the virtual
// port's receive path.
const virtualPacketSize = 60

// virtualBackend mints a fresh burst on every receive and frees whatever
// is sent. Useful to drive a pipeline at full rate without hardware.
type virtualBackend struct {
	pool *native.Mempool
	rxqs int
	txqs int
}

func newVirtualBackend(pool *native.Mempool, rxqs, txqs int) *virtualBackend {
	return &virtualBackend{pool: pool, rxqs: rxqs, txqs: txqs}
}

func (b *virtualBackend) RecvQueue(rxq int, pkts []*native.Mbuf) (int, error) {
	if err := b.pool.AllocBulk(pkts, virtualPacketSize); err != nil {
		return 0, nil
	}
	return len(pkts), nil
}

func (b *virtualBackend) SendQueue(txq int, pkts []*native.Mbuf) (int, error) {
	b.pool.FreeBulk(pkts)
	return len(pkts), nil
}

func (b *virtualBackend) MacAddr() [6]byte {
	return [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
}

func (b *virtualBackend) Close() error { return nil }
