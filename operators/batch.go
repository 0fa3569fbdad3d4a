// Lazy batch pipeline core types
package operators

import (
	"fmt"

	"github.com/netsys/netbricks/native"
	"github.com/netsys/netbricks/packets"
)

// BatchSize is the burst size: the most mbufs in flight per tick.
const BatchSize = 32

// Disposition says what must happen to an mbuf that short-circuited the
// pipeline.
type Disposition uint8

const (
	// Dropped mbufs are freed at the terminus without logging.
	Dropped Disposition = iota
	// Emitted mbufs are transmitted despite the pipeline not completing.
	Emitted
	// Aborted mbufs are freed at the terminus and the error logged once.
	Aborted
)

// PacketError is the short-circuit outcome of one packet. It carries the
// mbuf down the remainder of the chain so that exactly one of send/free
// happens at the terminus.
type PacketError struct {
	Disposition Disposition
	Mbuf        *native.Mbuf
	Err         error
}

func (e *PacketError) Error() string {
	switch e.Disposition {
	case Emitted:
		return "packet emitted"
	case Aborted:
		return fmt.Sprintf("packet aborted: %v", e.Err)
	default:
		return "packet dropped"
	}
}

// Drop marks the mbuf for the terminus free path.
func Drop(m *native.Mbuf) *PacketError {
	return &PacketError{Disposition: Dropped, Mbuf: m}
}

// Emit marks the mbuf for immediate transmit.
func Emit(m *native.Mbuf) *PacketError {
	return &PacketError{Disposition: Emitted, Mbuf: m}
}

// Abort marks the mbuf for the free path with an error to log.
func Abort(m *native.Mbuf, err error) *PacketError {
	return &PacketError{Disposition: Aborted, Mbuf: m, Err: err}
}

// Batch is a pull-based iterator over the packets of one burst. Operator
// composition never copies packets: each Next call threads one item
// through the whole chain.
type Batch interface {
	// Receive refills the chain's source for a new tick.
	Receive()
	// Next yields the next item. ok is false at end of batch. When perr
	// is non-nil the packet short-circuited and pkt is nil.
	Next() (pkt packets.Packet, perr *PacketError, ok bool)
}
