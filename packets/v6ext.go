// IPv6 extension headers: hop-by-hop, routing, segment routing
package packets

import (
	"encoding/binary"
	"net/netip"

	"github.com/netsys/netbricks/common"
)

// v6Ext carries the state shared by IPv6 extension header views. Extension
// headers delegate addressing to the fixed header they extend so that
// transport layers can sit on top of either.
type v6Ext struct {
	view
	ip IpPacket
}

// NextHeader returns the protocol number of the following header.
func (p *v6Ext) NextHeader() uint8 { return p.header()[0] }

// SetNextHeader sets the protocol number of the following header.
func (p *v6Ext) SetNextHeader(proto uint8) {
	p.assertExclusive()
	p.header()[0] = proto
}

// HdrExtLen returns the raw extension length field: the header length in
// 8-byte units, not counting the first unit.
func (p *v6Ext) HdrExtLen() uint8 { return p.header()[1] }

func (p *v6Ext) NextProtocol() uint8 { return p.NextHeader() }

func (p *v6Ext) SetNextProtocol(proto uint8) { p.SetNextHeader(proto) }

func (p *v6Ext) Src() netip.Addr { return p.ip.Src() }

func (p *v6Ext) Dst() netip.Addr { return p.ip.Dst() }

func (p *v6Ext) SetSrc(addr netip.Addr) error { return p.ip.SetSrc(addr) }

func (p *v6Ext) SetDst(addr netip.Addr) error { return p.ip.SetDst(addr) }

func (p *v6Ext) Flow() (Flow, error) {
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

func (p *v6Ext) pseudoSum(proto uint8, length int) uint16 {
	return pseudoHeaderSum(p.Src(), p.Dst(), proto, length)
}

// parseV6Ext validates the dynamic length of an extension header starting
// at the envelope's payload boundary.
func parseV6Ext(env IpPacket) (view, error) {
	offset, err := parseAt(env, 2)
	if err != nil {
		return view{}, err
	}
	hdrLen := int(env.Mbuf().DataAddr(offset)[1])*8 + 8
	if _, err := parseAt(env, hdrLen); err != nil {
		return view{}, err
	}
	return view{mbuf: env.Mbuf(), offset: offset, hdrLen: hdrLen, envelope: env}, nil
}

// fixedV6 walks the envelope chain back to the fixed IPv6 header.
func fixedV6(env IpPacket) IpPacket {
	if ext, ok := env.(interface{ fixed() IpPacket }); ok {
		return ext.fixed()
	}
	return env
}

func (p *v6Ext) fixed() IpPacket { return p.ip }

// Ipv6HopByHop is the hop-by-hop options extension header view.
type Ipv6HopByHop struct {
	v6Ext
}

// ParseHopByHop parses a hop-by-hop options header.
func ParseHopByHop(env IpPacket) (*Ipv6HopByHop, error) {
	v, err := parseV6Ext(env)
	if err != nil {
		return nil, err
	}
	return &Ipv6HopByHop{v6Ext{view: v, ip: fixedV6(env)}}, nil
}

// Ipv6Routing is the generic routing extension header view.
type Ipv6Routing struct {
	v6Ext
}

// ParseRouting parses a routing extension header.
func ParseRouting(env IpPacket) (*Ipv6Routing, error) {
	v, err := parseV6Ext(env)
	if err != nil {
		return nil, err
	}
	if v.hdrLen < 4 {
		return nil, common.BadOffsetError{Offset: v.offset}
	}
	return &Ipv6Routing{v6Ext{view: v, ip: fixedV6(env)}}, nil
}

// RoutingType returns the routing header variant.
func (p *Ipv6Routing) RoutingType() uint8 { return p.header()[2] }

// SegmentsLeft returns the number of route segments still to visit.
func (p *Ipv6Routing) SegmentsLeft() uint8 { return p.header()[3] }

// SetSegmentsLeft sets the number of route segments still to visit.
func (p *Ipv6Routing) SetSegmentsLeft(n uint8) {
	p.assertExclusive()
	p.header()[3] = n
}

// segmentRoutingType is the routing header variant carrying an SRv6
// segment list.
const segmentRoutingType = 4

// SegmentRouting is the SRv6 segment routing header view.
type SegmentRouting struct {
	Ipv6Routing
}

// ParseSegmentRouting parses a segment routing extension header.
func ParseSegmentRouting(env IpPacket) (*SegmentRouting, error) {
	r, err := ParseRouting(env)
	if err != nil {
		return nil, err
	}
	if r.RoutingType() != segmentRoutingType || r.hdrLen < 8 {
		return nil, common.BadOffsetError{Offset: r.offset}
	}
	return &SegmentRouting{*r}, nil
}

// PushSegmentRouting inserts a segment routing header with room for the
// given number of segments at the envelope payload boundary.
func PushSegmentRouting(env IpPacket, segments int) (*SegmentRouting, error) {
	size := 8 + 16*segments
	offset, err := pushAt(env, size)
	if err != nil {
		return nil, err
	}
	p := &SegmentRouting{Ipv6Routing{v6Ext{
		view: view{mbuf: env.Mbuf(), offset: offset, hdrLen: size, envelope: env},
		ip:   fixedV6(env),
	}}}
	h := p.header()
	h[1] = uint8(2 * segments)
	h[2] = segmentRoutingType
	h[4] = uint8(segments - 1)
	return p, nil
}

// LastEntry returns the index of the last segment list entry.
func (p *SegmentRouting) LastEntry() uint8 { return p.header()[4] }

// Tag returns the packet classification tag.
func (p *SegmentRouting) Tag() uint16 {
	return binary.BigEndian.Uint16(p.header()[6:8])
}

// NumSegments returns the number of entries in the segment list.
func (p *SegmentRouting) NumSegments() int {
	return (p.hdrLen - 8) / 16
}

// Segment returns the i-th segment list entry.
func (p *SegmentRouting) Segment(i int) netip.Addr {
	off := 8 + 16*i
	return netip.AddrFrom16([16]byte(p.header()[off : off+16]))
}

// SetSegment stores addr as the i-th segment list entry.
func (p *SegmentRouting) SetSegment(i int, addr netip.Addr) error {
	if !addr.Is6() || i < 0 || i >= p.NumSegments() {
		return common.BadOffsetError{Offset: p.offset}
	}
	p.assertExclusive()
	a := addr.As16()
	off := 8 + 16*i
	copy(p.header()[off:off+16], a[:])
	return nil
}
