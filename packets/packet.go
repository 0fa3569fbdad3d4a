// Typed zero-copy packet views over driver buffers
package packets

import (
	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

// Packet is a typed view over an mbuf anchored at a header boundary. Views
// form a stack: parsing the payload yields an inner view whose envelope is
// the current one. A view exclusively owns its mbuf until the packet is
// dropped, sent, emitted, or pushed into a send queue.
//
// Mutators must only be used while the underlying buffer holds a single
// reference; mutating a shared buffer is a programming error and panics.
type Packet interface {
	// Mbuf returns the underlying buffer handle.
	Mbuf() *native.Mbuf
	// Offset returns the absolute byte offset where this header starts.
	Offset() int
	// HeaderLen returns the length of this view's header in bytes.
	HeaderLen() int
	// Len returns the number of bytes from this header to end of data.
	Len() int
	// PayloadOffset returns the absolute offset where the payload starts.
	PayloadOffset() int
	// PayloadLen returns the length of the payload.
	PayloadLen() int
	// Payload returns a zero-copy view of the payload bytes.
	Payload() []byte
	// Envelope returns the outer view this one was parsed from.
	Envelope() Packet
	// Deparse returns the envelope view without moving any bytes.
	Deparse() Packet
	// Reset returns the outermost raw view at offset 0.
	Reset() *Raw
	// Cascade recomputes checksums from this layer outward.
	Cascade()
}

// view carries the state shared by every packet type.
type view struct {
	mbuf     *native.Mbuf
	offset   int
	hdrLen   int
	envelope Packet
}

func (v *view) Mbuf() *native.Mbuf { return v.mbuf }

func (v *view) Offset() int { return v.offset }

func (v *view) HeaderLen() int { return v.hdrLen }

func (v *view) Len() int { return v.mbuf.DataLen() - v.offset }

func (v *view) PayloadOffset() int { return v.offset + v.hdrLen }

func (v *view) PayloadLen() int { return v.Len() - v.hdrLen }

func (v *view) Payload() []byte {
	return v.mbuf.DataAddr(v.PayloadOffset())[:v.PayloadLen()]
}

func (v *view) Envelope() Packet { return v.envelope }

func (v *view) Deparse() Packet { return v.envelope }

func (v *view) Reset() *Raw { return RawFromMbuf(v.mbuf) }

// Cascade on a checksum-free layer just continues outward.
func (v *view) Cascade() { v.envelope.Cascade() }

// header returns the header bytes of this view.
func (v *view) header() []byte {
	return v.mbuf.DataAddr(v.offset)[:v.hdrLen]
}

// assertExclusive enforces the single-reference invariant before any
// in-place mutation.
func (v *view) assertExclusive() {
	if v.mbuf.Refcnt() > 1 {
		panic("packets: mutation of a buffer with refcnt > 1")
	}
}

// Raw is the outermost packet view: the whole mbuf with no header.
type Raw struct {
	view
}

// RawFromMbuf wraps an mbuf received from a port.
func RawFromMbuf(m *native.Mbuf) *Raw {
	p := &Raw{view{mbuf: m}}
	p.envelope = p
	return p
}

// NewRaw allocates an empty packet from the process-wide pool.
func NewRaw() (*Raw, error) {
	m, err := native.DefaultPool().Alloc()
	if err != nil {
		return nil, err
	}
	return RawFromMbuf(m), nil
}

// RawFromBytes allocates a packet and fills it with data.
func RawFromBytes(data []byte) (*Raw, error) {
	p, err := NewRaw()
	if err != nil {
		return nil, err
	}
	if err := native.Alloc(p.mbuf, 0, len(data)); err != nil {
		native.DefaultPool().Free(p.mbuf)
		return nil, err
	}
	if err := native.WriteSlice(p.mbuf, 0, data); err != nil {
		native.DefaultPool().Free(p.mbuf)
		return nil, err
	}
	return p, nil
}

// Cascade on the raw view terminates the walk.
func (p *Raw) Cascade() {}

func (p *Raw) Reset() *Raw { return p }

// parseAt validates that an inner header of at least size bytes fits in
// the envelope's payload and returns its absolute offset.
func parseAt(env Packet, size int) (int, error) {
	offset := env.PayloadOffset()
	if env.PayloadLen() < size {
		return 0, common.BadOffsetError{Offset: offset}
	}
	return offset, nil
}

// pushAt makes room for a size-byte header at the envelope's payload
// boundary, shifting any existing payload toward the tail.
func pushAt(env Packet, size int) (int, error) {
	offset := env.PayloadOffset()
	if err := native.Alloc(env.Mbuf(), offset, size); err != nil {
		return 0, common.ErrFailedToInsertHeader
	}
	clear(env.Mbuf().DataAddr(offset)[:size])
	return offset, nil
}

// removeHeader drops the header bytes of p, shifting the payload toward
// the head, and hands the buffer back to the envelope view.
func removeHeader(p Packet) (Packet, error) {
	if err := native.Dealloc(p.Mbuf(), p.Offset(), p.HeaderLen()); err != nil {
		return nil, common.ErrFailedToRemoveHeader
	}
	return p.Envelope(), nil
}
