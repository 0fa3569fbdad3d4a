// NDP message and option views
package packets

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

// NDP option kinds.
const (
	NdpOptSourceLinkLayerAddress uint8 = 1
	NdpOptTargetLinkLayerAddress uint8 = 2
	NdpOptPrefixInformation      uint8 = 3
	NdpOptMtu                    uint8 = 5
)

// RouterSolicitation is the router solicitation message view. Options
// follow the 4 reserved bytes.
type RouterSolicitation struct {
	Icmpv6
}

// ParseRouterSolicitation narrows the message to a router solicitation.
func (p *Icmpv6) ParseRouterSolicitation() (*RouterSolicitation, error) {
	v, err := p.variant(Icmpv6RouterSolicitation, 8)
	if err != nil {
		return nil, err
	}
	return &RouterSolicitation{v}, nil
}

// RouterAdvertisement is the router advertisement message view.
type RouterAdvertisement struct {
	Icmpv6
}

// routerAdvertLen covers the common header, hop limit, flags, lifetime,
// reachable time and retransmit timer.
const routerAdvertLen = 16

// ParseRouterAdvertisement narrows the message to a router advertisement.
func (p *Icmpv6) ParseRouterAdvertisement() (*RouterAdvertisement, error) {
	v, err := p.variant(Icmpv6RouterAdvertisement, routerAdvertLen)
	if err != nil {
		return nil, err
	}
	return &RouterAdvertisement{v}, nil
}

// CurrentHopLimit returns the advertised default hop limit.
func (p *RouterAdvertisement) CurrentHopLimit() uint8 { return p.header()[4] }

// SetCurrentHopLimit sets the advertised default hop limit.
func (p *RouterAdvertisement) SetCurrentHopLimit(n uint8) {
	p.assertExclusive()
	p.header()[4] = n
}

// Managed reports the managed address configuration flag.
func (p *RouterAdvertisement) Managed() bool { return p.header()[5]&0x80 != 0 }

// OtherConfig reports the other configuration flag.
func (p *RouterAdvertisement) OtherConfig() bool { return p.header()[5]&0x40 != 0 }

// RouterLifetime returns the default-router lifetime.
func (p *RouterAdvertisement) RouterLifetime() time.Duration {
	return time.Duration(binary.BigEndian.Uint16(p.header()[6:8])) * time.Second
}

// ReachableTime returns the advertised reachable time.
func (p *RouterAdvertisement) ReachableTime() time.Duration {
	return time.Duration(binary.BigEndian.Uint32(p.header()[8:12])) * time.Millisecond
}

// RetransTimer returns the advertised retransmit timer.
func (p *RouterAdvertisement) RetransTimer() time.Duration {
	return time.Duration(binary.BigEndian.Uint32(p.header()[12:16])) * time.Millisecond
}

// neighborLen covers the common header, 4 flag/reserved bytes and the
// target address.
const neighborLen = 24

// NeighborSolicitation is the neighbor solicitation message view.
type NeighborSolicitation struct {
	Icmpv6
}

// ParseNeighborSolicitation narrows the message to a neighbor
// solicitation.
func (p *Icmpv6) ParseNeighborSolicitation() (*NeighborSolicitation, error) {
	v, err := p.variant(Icmpv6NeighborSolicitation, neighborLen)
	if err != nil {
		return nil, err
	}
	return &NeighborSolicitation{v}, nil
}

// TargetAddr returns the address being resolved.
func (p *NeighborSolicitation) TargetAddr() netip.Addr {
	return netip.AddrFrom16([16]byte(p.header()[8:24]))
}

// SetTargetAddr sets the address being resolved.
func (p *NeighborSolicitation) SetTargetAddr(addr netip.Addr) error {
	if !addr.Is6() {
		return common.BadOffsetError{Offset: p.offset}
	}
	p.assertExclusive()
	a := addr.As16()
	copy(p.header()[8:24], a[:])
	return nil
}

// NeighborAdvertisement is the neighbor advertisement message view.
type NeighborAdvertisement struct {
	NeighborSolicitation
}

// ParseNeighborAdvertisement narrows the message to a neighbor
// advertisement.
func (p *Icmpv6) ParseNeighborAdvertisement() (*NeighborAdvertisement, error) {
	v, err := p.variant(Icmpv6NeighborAdvertisement, neighborLen)
	if err != nil {
		return nil, err
	}
	return &NeighborAdvertisement{NeighborSolicitation{v}}, nil
}

// Router reports the router flag.
func (p *NeighborAdvertisement) Router() bool { return p.header()[4]&0x80 != 0 }

// Solicited reports the solicited flag.
func (p *NeighborAdvertisement) Solicited() bool { return p.header()[4]&0x40 != 0 }

// Override reports the override flag.
func (p *NeighborAdvertisement) Override() bool { return p.header()[4]&0x20 != 0 }

// SetFlags sets the router/solicited/override flag bits.
func (p *NeighborAdvertisement) SetFlags(router, solicited, override bool) {
	p.assertExclusive()
	var b uint8
	if router {
		b |= 0x80
	}
	if solicited {
		b |= 0x40
	}
	if override {
		b |= 0x20
	}
	p.header()[4] = b
}

// NdpOption is one type-length-value option of an NDP message.
type NdpOption struct {
	Kind uint8
	data []byte
}

// Len returns the option length in bytes.
func (o NdpOption) Len() int { return len(o.data) }

// LinkLayerAddr returns the MAC carried by a source/target link-layer
// address option.
func (o NdpOption) LinkLayerAddr() MacAddr {
	return MacAddrFromSlice(o.data[2:8])
}

// Mtu returns the MTU carried by an MTU option.
func (o NdpOption) Mtu() uint32 {
	return binary.BigEndian.Uint32(o.data[4:8])
}

// Prefix returns the prefix carried by a prefix information option.
func (o NdpOption) Prefix() (netip.Prefix, error) {
	if len(o.data) < 32 {
		return netip.Prefix{}, common.BadOffsetError{Offset: 0}
	}
	addr := netip.AddrFrom16([16]byte(o.data[16:32]))
	return addr.Prefix(int(o.data[2]))
}

// Options walks the option region following the fixed message fields.
// Truncated or zero-length options end the walk.
func (p *Icmpv6) Options() []NdpOption {
	var opts []NdpOption
	rest := p.Payload()
	for len(rest) >= 2 {
		n := int(rest[1]) * 8
		if n == 0 || n > len(rest) {
			break
		}
		opts = append(opts, NdpOption{Kind: rest[0], data: rest[:n]})
		rest = rest[n:]
	}
	return opts
}

// FindOption returns the first option of the given kind.
func (p *Icmpv6) FindOption(kind uint8) (NdpOption, bool) {
	for _, o := range p.Options() {
		if o.Kind == kind {
			return o, true
		}
	}
	return NdpOption{}, false
}

// AppendLinkLayerAddressOption appends a source or target link-layer
// address option to the message.
func (p *Icmpv6) AppendLinkLayerAddressOption(kind uint8, addr MacAddr) error {
	p.assertExclusive()
	end := p.mbuf.DataLen()
	if err := native.Alloc(p.mbuf, end, 8); err != nil {
		return err
	}
	b := p.mbuf.DataAddr(end)[:8]
	b[0] = kind
	b[1] = 1
	copy(b[2:8], addr[:])
	return nil
}

// AppendMtuOption appends an MTU option to the message.
func (p *Icmpv6) AppendMtuOption(mtu uint32) error {
	p.assertExclusive()
	end := p.mbuf.DataLen()
	if err := native.Alloc(p.mbuf, end, 8); err != nil {
		return err
	}
	b := p.mbuf.DataAddr(end)[:8]
	b[0] = NdpOptMtu
	b[1] = 1
	binary.BigEndian.PutUint32(b[4:8], mtu)
	return nil
}
