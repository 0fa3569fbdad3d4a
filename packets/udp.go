// UDP header view
package packets

import (
	"encoding/binary"
	"fmt"
)

// UdpLen is the UDP header length.
const UdpLen = 8

// Udp is the UDP header view over a v4 or v6 network layer.
type Udp struct {
	view
	ip IpPacket
}

// ParseUdp parses the envelope payload as a UDP header.
func ParseUdp(env IpPacket) (*Udp, error) {
	offset, err := parseAt(env, UdpLen)
	if err != nil {
		return nil, err
	}
	return &Udp{view{mbuf: env.Mbuf(), offset: offset, hdrLen: UdpLen, envelope: env}, env}, nil
}

// PushUdp inserts a default UDP header at the envelope payload boundary.
func PushUdp(env IpPacket) (*Udp, error) {
	offset, err := pushAt(env, UdpLen)
	if err != nil {
		return nil, err
	}
	return &Udp{view{mbuf: env.Mbuf(), offset: offset, hdrLen: UdpLen, envelope: env}, env}, nil
}

// SrcPort returns the source port.
func (p *Udp) SrcPort() uint16 {
	return binary.BigEndian.Uint16(p.header()[0:2])
}

// SetSrcPort sets the source port.
func (p *Udp) SetSrcPort(port uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[0:2], port)
}

// DstPort returns the destination port.
func (p *Udp) DstPort() uint16 {
	return binary.BigEndian.Uint16(p.header()[2:4])
}

// SetDstPort sets the destination port.
func (p *Udp) SetDstPort(port uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[2:4], port)
}

// Length returns the datagram length field including the header.
func (p *Udp) Length() uint16 {
	return binary.BigEndian.Uint16(p.header()[4:6])
}

// SetLength sets the datagram length field.
func (p *Udp) SetLength(n uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[4:6], n)
}

// Checksum returns the transport checksum field.
func (p *Udp) Checksum() uint16 {
	return binary.BigEndian.Uint16(p.header()[6:8])
}

// Flow returns the packet's 5-tuple.
func (p *Udp) Flow() Flow {
	return Flow{
		SrcIP:   p.ip.Src(),
		DstIP:   p.ip.Dst(),
		SrcPort: p.SrcPort(),
		DstPort: p.DstPort(),
		Proto:   ProtocolUdp,
	}
}

// ComputeChecksum recomputes and stores the transport checksum using the
// v4 or v6 pseudo-header.
func (p *Udp) ComputeChecksum() {
	p.assertExclusive()
	msg := p.mbuf.DataAddr(p.offset)[:p.Len()]
	partial := p.ip.pseudoSum(ProtocolUdp, p.Len())
	binary.BigEndian.PutUint16(p.header()[6:8], transportChecksum(msg, 6, partial))
}

// Cascade recomputes this header's checksum, then the envelope's.
func (p *Udp) Cascade() {
	p.ComputeChecksum()
	p.envelope.Cascade()
}

// Remove drops the header bytes and returns the envelope view.
func (p *Udp) Remove() (Packet, error) {
	return removeHeader(p)
}

func (p *Udp) String() string {
	return fmt.Sprintf("udp %d > %d len %d", p.SrcPort(), p.DstPort(), p.Length())
}
