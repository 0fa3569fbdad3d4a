// Ethernet frame view with 802.1Q/802.1AD awareness
package packets

import (
	"encoding/binary"
	"fmt"
)

// EthernetMinLen is the untagged ethernet header length.
const EthernetMinLen = 14

// Ethernet is the L2 frame view. Tagged frames (802.1Q at 0x8100, stacked
// tags at 0x9100) extend the header so that the payload always starts
// after the innermost tag.
type Ethernet struct {
	view
}

// ethernetHeaderLen derives the header length from the outer tag.
func ethernetHeaderLen(etype EtherType) int {
	switch etype {
	case EtherTypeVlan:
		return 18
	case EtherTypeQinQ:
		return 22
	default:
		return EthernetMinLen
	}
}

// ParseEthernet parses the frame at the start of a raw packet.
func (p *Raw) ParseEthernet() (*Ethernet, error) {
	offset, err := parseAt(p, EthernetMinLen)
	if err != nil {
		return nil, err
	}
	eth := &Ethernet{view{mbuf: p.mbuf, offset: offset, hdrLen: EthernetMinLen, envelope: p}}
	outer := EtherType(binary.BigEndian.Uint16(eth.header()[12:14]))
	if hdrLen := ethernetHeaderLen(outer); hdrLen != EthernetMinLen {
		if _, err := parseAt(p, hdrLen); err != nil {
			return nil, err
		}
		eth.hdrLen = hdrLen
	}
	return eth, nil
}

// PushEthernet prepends a zeroed untagged frame header to a raw packet.
func PushEthernet(p *Raw) (*Ethernet, error) {
	offset, err := pushAt(p, EthernetMinLen)
	if err != nil {
		return nil, err
	}
	return &Ethernet{view{mbuf: p.mbuf, offset: offset, hdrLen: EthernetMinLen, envelope: p}}, nil
}

// Dst returns the destination address.
func (p *Ethernet) Dst() MacAddr {
	return MacAddrFromSlice(p.header()[0:6])
}

// SetDst sets the destination address.
func (p *Ethernet) SetDst(addr MacAddr) {
	p.assertExclusive()
	copy(p.header()[0:6], addr[:])
}

// Src returns the source address.
func (p *Ethernet) Src() MacAddr {
	return MacAddrFromSlice(p.header()[6:12])
}

// SetSrc sets the source address.
func (p *Ethernet) SetSrc(addr MacAddr) {
	p.assertExclusive()
	copy(p.header()[6:12], addr[:])
}

// SwapAddresses exchanges the source and destination addresses.
func (p *Ethernet) SwapAddresses() {
	p.assertExclusive()
	h := p.header()
	var tmp [6]byte
	copy(tmp[:], h[0:6])
	copy(h[0:6], h[6:12])
	copy(h[6:12], tmp[:])
}

// EtherType returns the effective frame type, skipping any VLAN tags.
func (p *Ethernet) EtherType() EtherType {
	return EtherType(binary.BigEndian.Uint16(p.header()[p.hdrLen-2 : p.hdrLen]))
}

// SetEtherType sets the effective frame type.
func (p *Ethernet) SetEtherType(t EtherType) {
	p.assertExclusive()
	binary.BigEndian.PutUint16(p.header()[p.hdrLen-2:p.hdrLen], uint16(t))
}

// Tagged reports whether the frame carries VLAN tags.
func (p *Ethernet) Tagged() bool {
	return p.hdrLen > EthernetMinLen
}

func (p *Ethernet) String() string {
	return fmt.Sprintf("%s > %s [%s]", p.Src(), p.Dst(), p.EtherType())
}
