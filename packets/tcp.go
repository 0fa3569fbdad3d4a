// TCP header view
package packets

import (
	"encoding/binary"
	"fmt"

	"github.com/netsys/netbricks/common"
)

// TcpMinLen is the header length without options.
const TcpMinLen = 20

// TCP flag bits.
const (
	TcpFin uint8 = 1 << 0
	TcpSyn uint8 = 1 << 1
	TcpRst uint8 = 1 << 2
	TcpPsh uint8 = 1 << 3
	TcpAck uint8 = 1 << 4
	TcpUrg uint8 = 1 << 5
)

// Tcp is the TCP header view over a v4 or v6 network layer.
type Tcp struct {
	view
	ip IpPacket
}

// ParseTcp parses the envelope payload as a TCP header.
func ParseTcp(env IpPacket) (*Tcp, error) {
	offset, err := parseAt(env, TcpMinLen)
	if err != nil {
		return nil, err
	}
	hdrLen := int(env.Mbuf().DataAddr(offset)[12]>>4) * 4
	if hdrLen < TcpMinLen {
		return nil, common.BadOffsetError{Offset: offset}
	}
	if _, err := parseAt(env, hdrLen); err != nil {
		return nil, err
	}
	return &Tcp{view{mbuf: env.Mbuf(), offset: offset, hdrLen: hdrLen, envelope: env}, env}, nil
}

// PushTcp inserts a default TCP header at the envelope payload boundary.
func PushTcp(env IpPacket) (*Tcp, error) {
	offset, err := pushAt(env, TcpMinLen)
	if err != nil {
		return nil, err
	}
	p := &Tcp{view{mbuf: env.Mbuf(), offset: offset, hdrLen: TcpMinLen, envelope: env}, env}
	p.header()[12] = 5 << 4
	return p, nil
}

// SrcPort returns the source port.
func (p *Tcp) SrcPort() uint16 {
	return binary.BigEndian.Uint16(p.header()[0:2])
}

// SetSrcPort sets the source port.
func (p *Tcp) SetSrcPort(port uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[0:2], port)
}

// DstPort returns the destination port.
func (p *Tcp) DstPort() uint16 {
	return binary.BigEndian.Uint16(p.header()[2:4])
}

// SetDstPort sets the destination port.
func (p *Tcp) SetDstPort(port uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[2:4], port)
}

// SeqNo returns the sequence number.
func (p *Tcp) SeqNo() uint32 {
	return binary.BigEndian.Uint32(p.header()[4:8])
}

// SetSeqNo sets the sequence number.
func (p *Tcp) SetSeqNo(seq uint32) {
	p.assertExclusive()
	binary.BigEndian.PutUint32(p.header()[4:8], seq)
}

// AckNo returns the acknowledgment number.
func (p *Tcp) AckNo() uint32 {
	return binary.BigEndian.Uint32(p.header()[8:12])
}

// SetAckNo sets the acknowledgment number.
func (p *Tcp) SetAckNo(ack uint32) {
	p.assertExclusive()
	binary.BigEndian.PutUint32(p.header()[8:12], ack)
}

func (p *Tcp) flags() uint8 { return p.header()[13] }

// Syn reports whether the SYN flag is set.
func (p *Tcp) Syn() bool { return p.flags()&TcpSyn != 0 }

// Ack reports whether the ACK flag is set.
func (p *Tcp) Ack() bool { return p.flags()&TcpAck != 0 }

// Rst reports whether the RST flag is set.
func (p *Tcp) Rst() bool { return p.flags()&TcpRst != 0 }

// Psh reports whether the PSH flag is set.
func (p *Tcp) Psh() bool { return p.flags()&TcpPsh != 0 }

// Fin reports whether the FIN flag is set.
func (p *Tcp) Fin() bool { return p.flags()&TcpFin != 0 }

// SetFlags replaces the flag byte.
func (p *Tcp) SetFlags(flags uint8) {
	p.assertExclusive()
	p.header()[13] = flags
}

// Window returns the receive window.
func (p *Tcp) Window() uint16 {
	return binary.BigEndian.Uint16(p.header()[14:16])
}

// SetWindow sets the receive window.
func (p *Tcp) SetWindow(w uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[14:16], w)
}

// Checksum returns the transport checksum field.
func (p *Tcp) Checksum() uint16 {
	return binary.BigEndian.Uint16(p.header()[16:18])
}

// Flow returns the packet's 5-tuple.
func (p *Tcp) Flow() Flow {
	return Flow{
		SrcIP:   p.ip.Src(),
		DstIP:   p.ip.Dst(),
		SrcPort: p.SrcPort(),
		DstPort: p.DstPort(),
		Proto:   ProtocolTcp,
	}
}

// ComputeChecksum recomputes and stores the transport checksum using the
// v4 or v6 pseudo-header.
func (p *Tcp) ComputeChecksum() {
	p.assertExclusive()
	msg := p.mbuf.DataAddr(p.offset)[:p.Len()]
	partial := p.ip.pseudoSum(ProtocolTcp, p.Len())
	binary.BigEndian.PutUint16(p.header()[16:18], transportChecksum(msg, 16, partial))
}

// Cascade recomputes this header's checksum, then the envelope's.
func (p *Tcp) Cascade() {
	p.ComputeChecksum()
	p.envelope.Cascade()
}

// Remove drops the header bytes and returns the envelope view.
func (p *Tcp) Remove() (Packet, error) {
	return removeHeader(p)
}

func (p *Tcp) String() string {
	return fmt.Sprintf("tcp %d > %d seq %d ack %d", p.SrcPort(), p.DstPort(), p.SeqNo(), p.AckNo())
}
