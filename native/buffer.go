// Typed buffer access helpers with bounds checks against the mbuf
package native

import (
	"encoding/binary"

	"github.com/netsys/netbricks/common"
)

// ReadSlice returns a zero-copy view of n bytes at offset. Fails with a
// BadOffsetError when the access would exceed the valid data region.
func ReadSlice(m *Mbuf, offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > m.DataLen() {
		return nil, common.BadOffsetError{Offset: offset}
	}
	return m.DataAddr(offset)[:n:n], nil
}

// WriteSlice copies data into the buffer at offset. The destination range
// must already be within the valid data region.
func WriteSlice(m *Mbuf, offset int, data []byte) error {
	if offset < 0 || offset+len(data) > m.DataLen() {
		return common.BadOffsetError{Offset: offset}
	}
	copy(m.DataAddr(offset), data)
	return nil
}

// ReadU8 reads one byte at offset.
func ReadU8(m *Mbuf, offset int) (uint8, error) {
	b, err := ReadSlice(m, offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteU8 writes one byte at offset.
func WriteU8(m *Mbuf, offset int, v uint8) error {
	b, err := ReadSlice(m, offset, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// ReadU16 reads a big-endian 16-bit word at offset.
func ReadU16(m *Mbuf, offset int) (uint16, error) {
	b, err := ReadSlice(m, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// WriteU16 writes a big-endian 16-bit word at offset.
func WriteU16(m *Mbuf, offset int, v uint16) error {
	b, err := ReadSlice(m, offset, 2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

// ReadU32 reads a big-endian 32-bit word at offset.
func ReadU32(m *Mbuf, offset int) (uint32, error) {
	b, err := ReadSlice(m, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// WriteU32 writes a big-endian 32-bit word at offset.
func WriteU32(m *Mbuf, offset int, v uint32) error {
	b, err := ReadSlice(m, offset, 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

// Alloc grows the data region by n bytes at offset, shifting any bytes at
// and beyond offset toward the tail. Fails with ErrFailedAllocation when
// growth exceeds the tailroom.
func Alloc(m *Mbuf, offset, n int) error {
	if n == 0 {
		return nil
	}
	if offset < 0 || offset > m.DataLen() {
		return common.BadOffsetError{Offset: offset}
	}
	tailLen := m.DataLen() - offset
	if m.AddDataEnd(n) != n {
		return common.ErrFailedAllocation
	}
	if tailLen > 0 {
		data := m.DataAddr(offset)
		copy(data[n:n+tailLen], data[:tailLen])
	}
	return nil
}

// Dealloc removes n bytes of the data region starting at offset, shifting
// the remaining tail bytes toward the head.
func Dealloc(m *Mbuf, offset, n int) error {
	if n == 0 {
		return nil
	}
	if offset < 0 || offset+n > m.DataLen() {
		return common.BadOffsetError{Offset: offset}
	}
	tailLen := m.DataLen() - offset - n
	if tailLen > 0 {
		data := m.DataAddr(offset)
		copy(data[:tailLen], data[n:n+tailLen])
	}
	if m.RemoveDataEnd(n) != n {
		return common.ErrFailedDeallocation
	}
	return nil
}

// Realloc adjusts the data region at offset by delta bytes: positive delta
// inserts space, negative delta removes it.
func Realloc(m *Mbuf, offset, delta int) error {
	switch {
	case delta > 0:
		return Alloc(m, offset, delta)
	case delta < 0:
		return Dealloc(m, offset, -delta)
	default:
		return nil
	}
}
