// Message buffer facade over driver-owned frames
package native

import (
	"unsafe"

	"github.com/netsys/netbricks/common"
)

const (
	// FrameSize is the fixed size of a driver frame.
	FrameSize = 2048
	// Headroom reserved in front of packet data, used to prepend headers
	// without moving the payload.
	Headroom = 128
	// MetadataSlots is the number of 8-byte metadata slots adjacent to the
	// packet headers.
	MetadataSlots = 8
)

// Mbuf is an opaque handle to a driver-owned packet buffer. The field set
// mirrors the driver's buffer descriptor; only a single segment is
// supported, so pktLen always equals dataLen.
type Mbuf struct {
	buf        []byte
	dataOff    uint16
	refcnt     uint16
	nbSegs     uint8
	port       uint8
	olFlags    uint64
	packetType uint32
	pktLen     uint32
	dataLen    uint16
	vlanTCI    uint16
	hash       uint64
	seqn       uint32
	metadata   [MetadataSlots * 8]byte
	pool       *Mempool
}

// DataAddr returns the packet bytes starting at the given offset from the
// start of data, spanning the rest of the frame. No copy is made.
func (m *Mbuf) DataAddr(offset int) []byte {
	return m.buf[int(m.dataOff)+offset:]
}

// Data returns the valid packet bytes.
func (m *Mbuf) Data() []byte {
	return m.buf[m.dataOff : int(m.dataOff)+int(m.dataLen)]
}

// BufLen returns the total allocated size of the frame. This is a constant.
func (m *Mbuf) BufLen() int {
	return len(m.buf)
}

// DataLen returns the length of valid data in the buffer.
func (m *Mbuf) DataLen() int {
	return int(m.dataLen)
}

// PktLen returns the total packet length. Equal to DataLen under the
// single-segment assumption.
func (m *Mbuf) PktLen() int {
	return int(m.pktLen)
}

// Refcnt returns the buffer reference count.
func (m *Mbuf) Refcnt() int {
	return int(m.refcnt)
}

// Reference takes an additional reference on the buffer.
func (m *Mbuf) Reference() {
	m.refcnt++
}

// Port returns the input port recorded by the driver.
func (m *Mbuf) Port() uint8 {
	return m.port
}

// SetPort records the input port.
func (m *Mbuf) SetPort(port uint8) {
	m.port = port
}

// VlanTCI returns the VLAN tag control information recorded by the driver.
func (m *Mbuf) VlanTCI() uint16 {
	return m.vlanTCI
}

func (m *Mbuf) headroom() int {
	return int(m.dataOff)
}

func (m *Mbuf) tailroom() int {
	return len(m.buf) - int(m.dataOff) - int(m.dataLen)
}

// AddDataBegin grows the data region at the front by n bytes. Returns the
// number of bytes added, 0 when no headroom is left.
func (m *Mbuf) AddDataBegin(n int) int {
	if n > m.headroom() {
		return 0
	}
	m.dataOff -= uint16(n)
	m.dataLen += uint16(n)
	m.pktLen += uint32(n)
	return n
}

// AddDataEnd grows the data region at the back by n bytes. Returns the
// number of bytes added, 0 when no tailroom is left.
func (m *Mbuf) AddDataEnd(n int) int {
	if n > m.tailroom() {
		return 0
	}
	m.dataLen += uint16(n)
	m.pktLen += uint32(n)
	return n
}

// RemoveDataBegin shrinks the data region at the front by n bytes.
func (m *Mbuf) RemoveDataBegin(n int) int {
	if n > m.DataLen() {
		return 0
	}
	m.dataOff += uint16(n)
	m.dataLen -= uint16(n)
	m.pktLen -= uint32(n)
	return n
}

// RemoveDataEnd shrinks the data region at the back by n bytes.
func (m *Mbuf) RemoveDataEnd(n int) int {
	if n > m.DataLen() {
		return 0
	}
	m.dataLen -= uint16(n)
	m.pktLen -= uint32(n)
	return n
}

// WriteMetadataSlot stores a word in one of the metadata slots adjacent to
// the headers.
func (m *Mbuf) WriteMetadataSlot(slot int, value uint64) {
	*(*uint64)(unsafe.Pointer(&m.metadata[slot*8])) = value
}

// ReadMetadataSlot loads a word from a metadata slot.
func (m *Mbuf) ReadMetadataSlot(slot int) uint64 {
	return *(*uint64)(unsafe.Pointer(&m.metadata[slot*8]))
}

// WriteMetadata stores v in the metadata area starting at the given slot.
// The size of M is checked against the remaining slots at runtime.
func WriteMetadata[M any](m *Mbuf, slot int, v M) error {
	size := int(unsafe.Sizeof(v))
	if slot*8+size > len(m.metadata) {
		return common.ErrMetadataTooLarge
	}
	*(*M)(unsafe.Pointer(&m.metadata[slot*8])) = v
	return nil
}

// ReadMetadata loads a value of type M from the metadata area.
func ReadMetadata[M any](m *Mbuf, slot int) (M, error) {
	var v M
	size := int(unsafe.Sizeof(v))
	if slot*8+size > len(m.metadata) {
		return v, common.ErrMetadataTooLarge
	}
	v = *(*M)(unsafe.Pointer(&m.metadata[slot*8]))
	return v, nil
}
