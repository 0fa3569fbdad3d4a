// IPv4 header view
package packets

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/netsys/netbricks/common"
)

// Ipv4MinLen is the header length without options.
const Ipv4MinLen = 20

// IpPacket abstracts over the v4 and v6 network layers so transport
// parsers work uniformly. IPv6 extension headers also implement it,
// delegating addressing to the fixed header they extend.
type IpPacket interface {
	Packet
	// NextProtocol returns the protocol number of the following header.
	NextProtocol() uint8
	// SetNextProtocol sets the protocol number of the following header.
	SetNextProtocol(proto uint8)
	// Src returns the source address.
	Src() netip.Addr
	// Dst returns the destination address.
	Dst() netip.Addr
	// SetSrc sets the source address.
	SetSrc(addr netip.Addr) error
	// SetDst sets the destination address.
	SetDst(addr netip.Addr) error
	// Flow combines the addresses with the transport ports that follow.
	Flow() (Flow, error)
	// pseudoSum returns the pseudo-header sum for transport checksums.
	pseudoSum(proto uint8, length int) uint16
}

// Ipv4 is the IPv4 header view. Header length follows the IHL field.
type Ipv4 struct {
	view
}

// ParseIpv4 parses the envelope payload as an IPv4 header.
func (p *Ethernet) ParseIpv4() (*Ipv4, error) {
	return parseIpv4(p)
}

func parseIpv4(env Packet) (*Ipv4, error) {
	offset, err := parseAt(env, Ipv4MinLen)
	if err != nil {
		return nil, err
	}
	vihl := env.Mbuf().DataAddr(offset)[0]
	hdrLen := int(vihl&0x0f) * 4
	if hdrLen < Ipv4MinLen {
		return nil, common.BadOffsetError{Offset: offset}
	}
	if _, err := parseAt(env, hdrLen); err != nil {
		return nil, err
	}
	return &Ipv4{view{mbuf: env.Mbuf(), offset: offset, hdrLen: hdrLen, envelope: env}}, nil
}

// PushIpv4 inserts a default IPv4 header at the envelope payload boundary.
func PushIpv4(env *Ethernet) (*Ipv4, error) {
	offset, err := pushAt(env, Ipv4MinLen)
	if err != nil {
		return nil, err
	}
	p := &Ipv4{view{mbuf: env.Mbuf(), offset: offset, hdrLen: Ipv4MinLen, envelope: env}}
	p.header()[0] = 0x45
	p.header()[8] = 64
	return p, nil
}

// Version returns the IP version field.
func (p *Ipv4) Version() uint8 { return p.header()[0] >> 4 }

// Dscp returns the differentiated services code point.
func (p *Ipv4) Dscp() uint8 { return p.header()[1] >> 2 }

// TotalLen returns the datagram length including the header.
func (p *Ipv4) TotalLen() uint16 {
	return binary.BigEndian.Uint16(p.header()[2:4])
}

// SetTotalLen sets the datagram length.
func (p *Ipv4) SetTotalLen(n uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[2:4], n)
}

// Identification returns the fragment identification field.
func (p *Ipv4) Identification() uint16 {
	return binary.BigEndian.Uint16(p.header()[4:6])
}

// Ttl returns the time-to-live.
func (p *Ipv4) Ttl() uint8 { return p.header()[8] }

// SetTtl sets the time-to-live.
func (p *Ipv4) SetTtl(ttl uint8) {
	p.assertExclusive()
	p.header()[8] = ttl
}

// Protocol returns the transport protocol number.
func (p *Ipv4) Protocol() uint8 { return p.header()[9] }

// SetProtocol sets the transport protocol number.
func (p *Ipv4) SetProtocol(proto uint8) {
	p.assertExclusive()
	p.header()[9] = proto
}

// NextProtocol implements IpPacket.
func (p *Ipv4) NextProtocol() uint8 { return p.Protocol() }

// SetNextProtocol implements IpPacket.
func (p *Ipv4) SetNextProtocol(proto uint8) { p.SetProtocol(proto) }

// Checksum returns the header checksum field.
func (p *Ipv4) Checksum() uint16 {
	return binary.BigEndian.Uint16(p.header()[10:12])
}

// Src returns the source address.
func (p *Ipv4) Src() netip.Addr {
	return netip.AddrFrom4([4]byte(p.header()[12:16]))
}

// SetSrc sets the source address.
func (p *Ipv4) SetSrc(addr netip.Addr) error {
	if !addr.Is4() {
		return common.BadOffsetError{Offset: p.offset}
	}
	p.assertExclusive()
	a := addr.As4()
	copy(p.header()[12:16], a[:])
	return nil
}

// Dst returns the destination address.
func (p *Ipv4) Dst() netip.Addr {
	return netip.AddrFrom4([4]byte(p.header()[16:20]))
}

// SetDst sets the destination address.
func (p *Ipv4) SetDst(addr netip.Addr) error {
	if !addr.Is4() {
		return common.BadOffsetError{Offset: p.offset}
	}
	p.assertExclusive()
	a := addr.As4()
	copy(p.header()[16:20], a[:])
	return nil
}

// Flow reads the transport ports following the header and combines them
// with the addresses into a 5-tuple.
func (p *Ipv4) Flow() (Flow, error) {
	ports, err := flowPorts(p)
	if err != nil {
		return Flow{}, err
	}
	return Flow{
		SrcIP:   p.Src(),
		DstIP:   p.Dst(),
		SrcPort: ports[0],
		DstPort: ports[1],
		Proto:   p.Protocol(),
	}, nil
}

func (p *Ipv4) pseudoSum(proto uint8, length int) uint16 {
	return pseudoHeaderSum(p.Src(), p.Dst(), proto, length)
}

// ComputeChecksum recomputes and stores the header checksum.
func (p *Ipv4) ComputeChecksum() {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[10:12], headerChecksum(p.header(), 10))
}

// Cascade recomputes this header's checksum, then the envelope's.
func (p *Ipv4) Cascade() {
	p.ComputeChecksum()
	p.envelope.Cascade()
}

// Remove drops the header bytes and returns the envelope view.
func (p *Ipv4) Remove() (Packet, error) {
	return removeHeader(p)
}

func (p *Ipv4) String() string {
	return fmt.Sprintf("%s > %s ttl %d proto %d", p.Src(), p.Dst(), p.Ttl(), p.Protocol())
}

// flowPorts reads the source and destination ports at the start of an IP
// payload. Valid for TCP and UDP, whose ports lead the header.
func flowPorts(ip Packet) ([2]uint16, error) {
	if ip.PayloadLen() < 4 {
		return [2]uint16{}, common.BadOffsetError{Offset: ip.PayloadOffset()}
	}
	b := ip.Payload()
	return [2]uint16{
		binary.BigEndian.Uint16(b[0:2]),
		binary.BigEndian.Uint16(b[2:4]),
	}, nil
}
