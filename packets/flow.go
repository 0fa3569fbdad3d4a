// Connection 5-tuples
package packets

import (
	"fmt"
	"hash/fnv"
	"net/netip"
)

// Flow identifies a connection by its 5-tuple. The zero value is not a
// valid flow. Flow is comparable and can be used directly as a map key.
type Flow struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// Reverse returns the flow of the opposite direction.
func (f Flow) Reverse() Flow {
	return Flow{
		SrcIP:   f.DstIP,
		DstIP:   f.SrcIP,
		SrcPort: f.DstPort,
		DstPort: f.SrcPort,
		Proto:   f.Proto,
	}
}

// Hash returns an FNV-1a hash over all five tuple fields.
func (f Flow) Hash() uint64 {
	h := fnv.New64a()
	src := f.SrcIP.As16()
	dst := f.DstIP.As16()
	h.Write(src[:])
	h.Write(dst[:])
	var ports [5]byte
	ports[0] = byte(f.SrcPort >> 8)
	ports[1] = byte(f.SrcPort)
	ports[2] = byte(f.DstPort >> 8)
	ports[3] = byte(f.DstPort)
	ports[4] = f.Proto
	h.Write(ports[:])
	return h.Sum64()
}

func (f Flow) String() string {
	return fmt.Sprintf("%s:%d > %s:%d proto %d", f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.Proto)
}
