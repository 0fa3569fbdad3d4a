// CIDR prefix matching for v4 and v6
package utils

import (
	"fmt"
	"net/netip"
)

// Ipv4Cidr matches addresses against an IPv4 prefix.
type Ipv4Cidr struct {
	prefix netip.Prefix
}

// NewIpv4Cidr builds a prefix from an address and mask length.
func NewIpv4Cidr(addr netip.Addr, length int) (Ipv4Cidr, error) {
	if !addr.Is4() {
		return Ipv4Cidr{}, fmt.Errorf("not an IPv4 address: %s", addr)
	}
	p, err := addr.Prefix(length)
	if err != nil {
		return Ipv4Cidr{}, err
	}
	return Ipv4Cidr{prefix: p}, nil
}

// ParseIpv4Cidr parses "a.b.c.d/n" notation.
func ParseIpv4Cidr(s string) (Ipv4Cidr, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Ipv4Cidr{}, err
	}
	if !p.Addr().Is4() {
		return Ipv4Cidr{}, fmt.Errorf("not an IPv4 prefix: %s", s)
	}
	return Ipv4Cidr{prefix: p.Masked()}, nil
}

// Contains reports whether addr falls inside the prefix.
func (c Ipv4Cidr) Contains(addr netip.Addr) bool {
	return c.prefix.Contains(addr.Unmap())
}

func (c Ipv4Cidr) String() string { return c.prefix.String() }

// Ipv6Cidr matches addresses against an IPv6 prefix.
type Ipv6Cidr struct {
	prefix netip.Prefix
}

// NewIpv6Cidr builds a prefix from an address and mask length.
func NewIpv6Cidr(addr netip.Addr, length int) (Ipv6Cidr, error) {
	if !addr.Is6() {
		return Ipv6Cidr{}, fmt.Errorf("not an IPv6 address: %s", addr)
	}
	p, err := addr.Prefix(length)
	if err != nil {
		return Ipv6Cidr{}, err
	}
	return Ipv6Cidr{prefix: p}, nil
}

// ParseIpv6Cidr parses "addr/n" notation.
func ParseIpv6Cidr(s string) (Ipv6Cidr, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Ipv6Cidr{}, err
	}
	if !p.Addr().Is6() {
		return Ipv6Cidr{}, fmt.Errorf("not an IPv6 prefix: %s", s)
	}
	return Ipv6Cidr{prefix: p.Masked()}, nil
}

// Contains reports whether addr falls inside the prefix.
func (c Ipv6Cidr) Contains(addr netip.Addr) bool {
	return c.prefix.Contains(addr)
}

func (c Ipv6Cidr) String() string { return c.prefix.String() }
