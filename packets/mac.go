// MAC addresses and ethernet types
package packets

import (
	"fmt"
	"strings"

	"github.com/netsys/netbricks/common"
)

// MacAddr is a 48-bit ethernet address.
type MacAddr [6]byte

// NewMacAddr builds an address from its six octets.
func NewMacAddr(a, b, c, d, e, f byte) MacAddr {
	return MacAddr{a, b, c, d, e, f}
}

// MacAddrFromSlice copies the first six bytes of slice into an address.
func MacAddrFromSlice(slice []byte) MacAddr {
	var m MacAddr
	copy(m[:], slice)
	return m
}

// ParseMacAddr parses the colon-separated hexadecimal form.
func ParseMacAddr(s string) (MacAddr, error) {
	var m MacAddr
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return m, common.FailedToParseMacAddressError{Address: s}
	}
	for i, part := range parts {
		var b byte
		if _, err := fmt.Sscanf(part, "%02x", &b); err != nil || len(part) != 2 {
			return m, common.FailedToParseMacAddressError{Address: s}
		}
		m[i] = b
	}
	return m, nil
}

func (m MacAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EtherType identifies the protocol carried in an ethernet frame.
type EtherType uint16

const (
	EtherTypeIpv4 EtherType = 0x0800
	EtherTypeIpv6 EtherType = 0x86DD
	// EtherTypeVlan is the 802.1Q tagged frame type.
	EtherTypeVlan EtherType = 0x8100
	// EtherTypeQinQ is the stacked-VLAN frame type.
	EtherTypeQinQ EtherType = 0x9100
)

func (t EtherType) String() string {
	switch t {
	case EtherTypeIpv4:
		return "Ipv4"
	case EtherTypeIpv6:
		return "Ipv6"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// Assigned internet protocol numbers.
const (
	ProtocolTcp       uint8 = 0x06
	ProtocolUdp       uint8 = 0x11
	ProtocolIpv6Hop   uint8 = 0x00
	ProtocolIpv6Route uint8 = 0x2B
	ProtocolIcmpv6    uint8 = 0x3A
	ProtocolNoNext    uint8 = 0x3B
)
