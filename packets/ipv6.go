// IPv6 fixed header view
package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netsys/netbricks/common"
)

// Ipv6Len is the fixed header length.
const Ipv6Len = 40

// Ipv6MinMtu is the minimum link MTU every IPv6 node must support.
const Ipv6MinMtu = 1280

// Ipv6 is the IPv6 fixed header view.
type Ipv6 struct {
	view
}

// ParseIpv6 parses the envelope payload as an IPv6 fixed header.
func (p *Ethernet) ParseIpv6() (*Ipv6, error) {
	offset, err := parseAt(p, Ipv6Len)
	if err != nil {
		return nil, err
	}
	return &Ipv6{view{mbuf: p.mbuf, offset: offset, hdrLen: Ipv6Len, envelope: p}}, nil
}

// PushIpv6 inserts a default IPv6 header at the envelope payload boundary.
func PushIpv6(env *Ethernet) (*Ipv6, error) {
	offset, err := pushAt(env, Ipv6Len)
	if err != nil {
		return nil, err
	}
	p := &Ipv6{view{mbuf: env.Mbuf(), offset: offset, hdrLen: Ipv6Len, envelope: env}}
	p.header()[0] = 0x60
	p.header()[7] = 64
	return p, nil
}

// Version returns the IP version field.
func (p *Ipv6) Version() uint8 { return p.header()[0] >> 4 }

// FlowLabel returns the 20-bit flow label.
func (p *Ipv6) FlowLabel() uint32 {
	h := p.header()
	return uint32(h[1]&0x0f)<<16 | uint32(h[2])<<8 | uint32(h[3])
}

// PayloadLength returns the payload length field, which counts everything
// after the fixed header.
func (p *Ipv6) PayloadLength() uint16 {
	return binary.BigEndian.Uint16(p.header()[4:6])
}

// SetPayloadLength sets the payload length field.
func (p *Ipv6) SetPayloadLength(n uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[4:6], n)
}

// NextHeader returns the protocol number of the following header.
func (p *Ipv6) NextHeader() uint8 { return p.header()[6] }

// SetNextHeader sets the protocol number of the following header.
func (p *Ipv6) SetNextHeader(proto uint8) {
	p.assertExclusive()
	p.header()[6] = proto
}

// NextProtocol implements IpPacket.
func (p *Ipv6) NextProtocol() uint8 { return p.NextHeader() }

// SetNextProtocol implements IpPacket.
func (p *Ipv6) SetNextProtocol(proto uint8) { p.SetNextHeader(proto) }

// HopLimit returns the hop limit.
func (p *Ipv6) HopLimit() uint8 { return p.header()[7] }

// SetHopLimit sets the hop limit.
func (p *Ipv6) SetHopLimit(n uint8) {
	p.assertExclusive()
	p.header()[7] = n
}

// Src returns the source address.
func (p *Ipv6) Src() netip.Addr {
	return netip.AddrFrom16([16]byte(p.header()[8:24]))
}

// SetSrc sets the source address.
func (p *Ipv6) SetSrc(addr netip.Addr) error {
	if !addr.Is6() {
		return common.BadOffsetError{Offset: p.offset}
	}
	p.assertExclusive()
	a := addr.As16()
	copy(p.header()[8:24], a[:])
	return nil
}

// Dst returns the destination address.
func (p *Ipv6) Dst() netip.Addr {
	return netip.AddrFrom16([16]byte(p.header()[24:40]))
}

// SetDst sets the destination address.
func (p *Ipv6) SetDst(addr netip.Addr) error {
	if !addr.Is6() {
		return common.BadOffsetError{Offset: p.offset}
	}
	p.assertExclusive()
	a := addr.As16()
	copy(p.header()[24:40], a[:])
	return nil
}

// Flow combines the addresses with the transport ports that follow.
func (p *Ipv6) Flow() (Flow, error) {
	ports, err := flowPorts(p)
	if err != nil {
		return Flow{}, err
	}
	return Flow{
		SrcIP:   p.Src(),
		DstIP:   p.Dst(),
		SrcPort: ports[0],
		DstPort: ports[1],
		Proto:   p.NextHeader(),
	}, nil
}

func (p *Ipv6) pseudoSum(proto uint8, length int) uint16 {
	return pseudoHeaderSum(p.Src(), p.Dst(), proto, length)
}

// Remove drops the header bytes and returns the envelope view.
func (p *Ipv6) Remove() (Packet, error) {
	return removeHeader(p)
}

func (p *Ipv6) String() string {
	return fmt.Sprintf("%s > %s next %d hop %d", p.Src(), p.Dst(), p.NextHeader(), p.HopLimit())
}
