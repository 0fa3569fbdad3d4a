// Poll-mode port construction from configuration
package ports

import (
	"strings"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
	log "github.com/sirupsen/logrus"
)

// backend is the driver-facing face of a port: per-queue burst receive
// and transmit.
type backend interface {
	RecvQueue(rxq int, pkts []*native.Mbuf) (int, error)
	SendQueue(txq int, pkts []*native.Mbuf) (int, error)
	MacAddr() [6]byte
	Close() error
}

// PortSpec carries the per-port configuration the runtime hands to
// NewPmdPort.
type PortSpec struct {
	Name     string
	RxQueues int
	TxQueues int
	Loopback bool
	Pool     *native.Mempool
}

// PmdPort is a device bound to the poll-mode driver. The device name
// selects the backend:
//
//	virt            allocate-on-receive test port
//	ring:<name>     software loopback over SPSC rings
//	xdp:<iface>     AF_XDP socket on a physical interface (linux)
type PmdPort struct {
	name    string
	rxqs    int
	txqs    int
	backend backend
}

// NewPmdPort creates the port described by spec.
func NewPmdPort(spec PortSpec) (*PmdPort, error) {
	if spec.RxQueues <= 0 || spec.TxQueues <= 0 {
		return nil, common.ConfigurationError{Message: "port " + spec.Name + " needs at least one rx and tx queue"}
	}
	pool := spec.Pool
	if pool == nil {
		pool = native.DefaultPool()
	}

	var (
		be  backend
		err error
	)
	switch {
	case spec.Name == "virt":
		be = newVirtualBackend(pool, spec.RxQueues, spec.TxQueues)
	case strings.HasPrefix(spec.Name, "ring:"):
		be, err = newRingBackend(pool, spec.RxQueues, spec.TxQueues, spec.Loopback)
	case strings.HasPrefix(spec.Name, "xdp:"):
		be, err = newAfXdpBackend(strings.TrimPrefix(spec.Name, "xdp:"), pool, spec.RxQueues, spec.TxQueues)
	default:
		return nil, common.BadDevError{Device: spec.Name}
	}
	if err != nil {
		return nil, err
	}

	log.Infof("📡 port %s ready with %d rx / %d tx queues", spec.Name, spec.RxQueues, spec.TxQueues)
	return &PmdPort{
		name:    spec.Name,
		rxqs:    spec.RxQueues,
		txqs:    spec.TxQueues,
		backend: be,
	}, nil
}

// Name returns the configured device name.
func (p *PmdPort) Name() string { return p.name }

// MacAddr returns the port's hardware address.
func (p *PmdPort) MacAddr() [6]byte { return p.backend.MacAddr() }

// NewQueuePair binds an rx/tx queue pair of this port into a PortQueue.
func (p *PmdPort) NewQueuePair(rxq, txq int) (*PortQueue, error) {
	if rxq < 0 || rxq >= p.rxqs {
		return nil, common.BadRxQueueError{Port: 0, Queue: rxq}
	}
	if txq < 0 || txq >= p.txqs {
		return nil, common.BadTxQueueError{Port: 0, Queue: txq}
	}
	return &PortQueue{Port: p, rxq: rxq, txq: txq}, nil
}

// Close releases the backend.
func (p *PmdPort) Close() error { return p.backend.Close() }
