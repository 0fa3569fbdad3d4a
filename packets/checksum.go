// Internet checksum arithmetic for the cascade
package packets

import (
	"encoding/binary"
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip/checksum"
)

// pseudoHeaderSum returns the running ones-complement sum of the v4 or v6
// pseudo-header for the given transport protocol and length.
func pseudoHeaderSum(src, dst netip.Addr, proto uint8, length int) uint16 {
	var buf []byte
	if src.Is4() {
		b := make([]byte, 12)
		s, d := src.As4(), dst.As4()
		copy(b[0:4], s[:])
		copy(b[4:8], d[:])
		b[9] = proto
		binary.BigEndian.PutUint16(b[10:12], uint16(length))
		buf = b
	} else {
		b := make([]byte, 40)
		s, d := src.As16(), dst.As16()
		copy(b[0:16], s[:])
		copy(b[16:32], d[:])
		binary.BigEndian.PutUint32(b[32:36], uint32(length))
		b[39] = proto
		buf = b
	}
	return checksum.Checksum(buf, 0)
}

// transportChecksum computes the folded transport checksum over the
// message bytes with the checksum field at csumOff zeroed first.
func transportChecksum(msg []byte, csumOff int, partial uint16) uint16 {
	old := binary.BigEndian.Uint16(msg[csumOff : csumOff+2])
	binary.BigEndian.PutUint16(msg[csumOff:csumOff+2], 0)
	sum := checksum.Checksum(msg, partial)
	binary.BigEndian.PutUint16(msg[csumOff:csumOff+2], old)
	return ^sum
}

// headerChecksum computes the folded IPv4 header checksum with the
// checksum field at csumOff zeroed first.
func headerChecksum(hdr []byte, csumOff int) uint16 {
	old := binary.BigEndian.Uint16(hdr[csumOff : csumOff+2])
	binary.BigEndian.PutUint16(hdr[csumOff:csumOff+2], 0)
	sum := checksum.Checksum(hdr, 0)
	binary.BigEndian.PutUint16(hdr[csumOff:csumOff+2], old)
	return ^sum
}
