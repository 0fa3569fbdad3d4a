//go:build !linux

// AF_XDP is linux-only; other platforms reject xdp ports at configuration
package ports

import (
	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

func newAfXdpBackend(ifaceName string, pool *native.Mempool, rxqs, txqs int) (backend, error) {
	return nil, common.BadDevError{Device: "xdp:" + ifaceName}
}
