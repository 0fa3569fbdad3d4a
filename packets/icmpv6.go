// ICMPv6 message views
package packets

import (
	"encoding/binary"
	"fmt"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

// Icmpv6Type identifies the ICMPv6 message variant.
type Icmpv6Type uint8

const (
	Icmpv6PacketTooBig          Icmpv6Type = 2
	Icmpv6EchoRequest           Icmpv6Type = 128
	Icmpv6EchoReply             Icmpv6Type = 129
	Icmpv6RouterSolicitation    Icmpv6Type = 133
	Icmpv6RouterAdvertisement   Icmpv6Type = 134
	Icmpv6NeighborSolicitation  Icmpv6Type = 135
	Icmpv6NeighborAdvertisement Icmpv6Type = 136
)

func (t Icmpv6Type) String() string {
	switch t {
	case Icmpv6PacketTooBig:
		return "packet too big"
	case Icmpv6EchoRequest:
		return "echo request"
	case Icmpv6EchoReply:
		return "echo reply"
	case Icmpv6RouterSolicitation:
		return "router solicitation"
	case Icmpv6RouterAdvertisement:
		return "router advertisement"
	case Icmpv6NeighborSolicitation:
		return "neighbor solicitation"
	case Icmpv6NeighborAdvertisement:
		return "neighbor advertisement"
	default:
		return fmt.Sprintf("type %d", uint8(t))
	}
}

// icmpv6BaseLen covers type, code and checksum.
const icmpv6BaseLen = 4

// Icmpv6 is the generic ICMPv6 message view: the common header with the
// message body as payload. Typed variants extend the header over their
// fixed body fields.
type Icmpv6 struct {
	view
	ip IpPacket
}

// ParseIcmpv6 parses the envelope payload as an ICMPv6 message.
func ParseIcmpv6(env IpPacket) (*Icmpv6, error) {
	offset, err := parseAt(env, icmpv6BaseLen)
	if err != nil {
		return nil, err
	}
	return &Icmpv6{view{mbuf: env.Mbuf(), offset: offset, hdrLen: icmpv6BaseLen, envelope: env}, env}, nil
}

// PushIcmpv6 inserts an empty ICMPv6 message of the given type at the
// envelope payload boundary.
func PushIcmpv6(env IpPacket, t Icmpv6Type, bodyLen int) (*Icmpv6, error) {
	offset, err := pushAt(env, icmpv6BaseLen+bodyLen)
	if err != nil {
		return nil, err
	}
	p := &Icmpv6{view{mbuf: env.Mbuf(), offset: offset, hdrLen: icmpv6BaseLen, envelope: env}, env}
	p.header()[0] = uint8(t)
	return p, nil
}

// Type returns the message type.
func (p *Icmpv6) Type() Icmpv6Type { return Icmpv6Type(p.header()[0]) }

// SetType sets the message type.
func (p *Icmpv6) SetType(t Icmpv6Type) {
	p.assertExclusive()
	p.header()[0] = uint8(t)
}

// Code returns the message code.
func (p *Icmpv6) Code() uint8 { return p.header()[1] }

// SetCode sets the message code.
func (p *Icmpv6) SetCode(code uint8) {
	p.assertExclusive()
	p.header()[1] = code
}

// Checksum returns the message checksum field.
func (p *Icmpv6) Checksum() uint16 {
	return binary.BigEndian.Uint16(p.header()[2:4])
}

// ComputeChecksum recomputes and stores the message checksum over the
// whole ICMPv6 message with the IPv6 pseudo-header.
func (p *Icmpv6) ComputeChecksum() {
	p.assertExclusive()
	msg := p.mbuf.DataAddr(p.offset)[:p.Len()]
	partial := p.ip.pseudoSum(ProtocolIcmpv6, p.Len())
	binary.BigEndian.PutUint16(msg[2:4], transportChecksum(msg, 2, partial))
}

// Cascade recomputes this message's checksum, then the envelope's.
func (p *Icmpv6) Cascade() {
	p.ComputeChecksum()
	p.envelope.Cascade()
}

// variant re-anchors the message view with a larger fixed header after
// checking the expected type and body length.
func (p *Icmpv6) variant(t Icmpv6Type, hdrLen int) (Icmpv6, error) {
	if p.Type() != t || p.Len() < hdrLen {
		return Icmpv6{}, common.BadOffsetError{Offset: p.offset}
	}
	return Icmpv6{view{mbuf: p.mbuf, offset: p.offset, hdrLen: hdrLen, envelope: p.envelope}, p.ip}, nil
}

// EchoRequest is the echo request message view.
type EchoRequest struct {
	Icmpv6
}

// echoLen covers the common header plus identifier and sequence number.
const echoLen = 8

// ParseEchoRequest narrows the message to an echo request.
func (p *Icmpv6) ParseEchoRequest() (*EchoRequest, error) {
	v, err := p.variant(Icmpv6EchoRequest, echoLen)
	if err != nil {
		return nil, err
	}
	return &EchoRequest{v}, nil
}

// Identifier returns the identifier of the invoking request.
func (p *EchoRequest) Identifier() uint16 {
	return binary.BigEndian.Uint16(p.header()[4:6])
}

// SetIdentifier sets the identifier.
func (p *EchoRequest) SetIdentifier(id uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[4:6], id)
}

// SeqNo returns the sequence number.
func (p *EchoRequest) SeqNo() uint16 {
	return binary.BigEndian.Uint16(p.header()[6:8])
}

// SetSeqNo sets the sequence number.
func (p *EchoRequest) SetSeqNo(seq uint16) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[6:8], seq)
}

// Data returns the echo data that follows the fixed fields.
func (p *EchoRequest) Data() []byte { return p.Payload() }

// SetData replaces the echo data, resizing the buffer as needed.
func (p *EchoRequest) SetData(data []byte) error {
	p.assertExclusive()
	off := p.PayloadOffset()
	if err := native.Realloc(p.mbuf, off, len(data)-p.PayloadLen()); err != nil {
		return err
	}
	return native.WriteSlice(p.mbuf, off, data)
}

// EchoReply is the echo reply message view.
type EchoReply struct {
	EchoRequest
}

// ParseEchoReply narrows the message to an echo reply.
func (p *Icmpv6) ParseEchoReply() (*EchoReply, error) {
	v, err := p.variant(Icmpv6EchoReply, echoLen)
	if err != nil {
		return nil, err
	}
	return &EchoReply{EchoRequest{v}}, nil
}

// PacketTooBig is the packet-too-big message view.
type PacketTooBig struct {
	Icmpv6
}

// tooBigLen covers the common header plus the MTU field.
const tooBigLen = 8

// TooBigMaxPayload bounds the invoking-packet bytes carried in a
// packet-too-big message so the reply fits the minimum IPv6 MTU. Shorter
// invoking packets are carried whole.
const TooBigMaxPayload = 1232

// ParsePacketTooBig narrows the message to a packet-too-big report.
func (p *Icmpv6) ParsePacketTooBig() (*PacketTooBig, error) {
	v, err := p.variant(Icmpv6PacketTooBig, tooBigLen)
	if err != nil {
		return nil, err
	}
	return &PacketTooBig{v}, nil
}

// PushPacketTooBig inserts a packet-too-big message header ahead of the
// envelope payload, which becomes the invoking-packet snippet.
func PushPacketTooBig(env IpPacket) (*PacketTooBig, error) {
	offset, err := pushAt(env, tooBigLen)
	if err != nil {
		return nil, err
	}
	p := &PacketTooBig{Icmpv6{view{mbuf: env.Mbuf(), offset: offset, hdrLen: tooBigLen, envelope: env}, env}}
	p.header()[0] = uint8(Icmpv6PacketTooBig)
	return p, nil
}

// Mtu returns the reported next-hop MTU.
func (p *PacketTooBig) Mtu() uint32 {
	return binary.BigEndian.Uint32(p.header()[4:8])
}

// SetMtu sets the reported next-hop MTU.
func (p *PacketTooBig) SetMtu(mtu uint32) {
	p.assertExclusive()
	binary.BigEndian.PutUint32(p.header()[4:8], mtu)
}

// TrimPayload clamps the invoking-packet snippet to at most
// TooBigMaxPayload bytes.
func (p *PacketTooBig) TrimPayload() {
	p.assertExclusive()
	if excess := p.PayloadLen() - TooBigMaxPayload; excess > 0 {
		p.mbuf.RemoveDataEnd(excess)
	}
}
