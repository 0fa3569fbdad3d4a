// Per-packet transform operators: map, filter, filter_map, for_each, emit
package operators

import (
	"github.com/netsys/netbricks/packets"
)

// MapBatch applies a transform to every packet. A transform error marks
// the packet aborted and short-circuits the rest of the pipeline.
type MapBatch struct {
	source Batch
	f      func(packets.Packet) (packets.Packet, error)
}

// NewMap chains a transform onto source.
func NewMap(source Batch, f func(packets.Packet) (packets.Packet, error)) *MapBatch {
	return &MapBatch{source: source, f: f}
}

func (b *MapBatch) Receive() { b.source.Receive() }

func (b *MapBatch) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.source.Next()
	if !ok || perr != nil {
		return nil, perr, ok
	}
	mbuf := pkt.Mbuf()
	out, err := b.f(pkt)
	if err != nil {
		return nil, Abort(mbuf, err), true
	}
	return out, nil, true
}

// FilterBatch drops packets failing a predicate.
type FilterBatch struct {
	source Batch
	pred   func(packets.Packet) bool
}

// NewFilter chains a predicate onto source.
func NewFilter(source Batch, pred func(packets.Packet) bool) *FilterBatch {
	return &FilterBatch{source: source, pred: pred}
}

func (b *FilterBatch) Receive() { b.source.Receive() }

func (b *FilterBatch) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.source.Next()
	if !ok || perr != nil {
		return nil, perr, ok
	}
	if b.pred(pkt) {
		return pkt, nil, true
	}
	return nil, Drop(pkt.Mbuf()), true
}

// FilterMapBatch transforms and filters in one step: a nil result drops
// the packet, an error aborts it.
type FilterMapBatch struct {
	source Batch
	f      func(packets.Packet) (packets.Packet, error)
}

// NewFilterMap chains a filtering transform onto source.
func NewFilterMap(source Batch, f func(packets.Packet) (packets.Packet, error)) *FilterMapBatch {
	return &FilterMapBatch{source: source, f: f}
}

func (b *FilterMapBatch) Receive() { b.source.Receive() }

func (b *FilterMapBatch) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.source.Next()
	if !ok || perr != nil {
		return nil, perr, ok
	}
	mbuf := pkt.Mbuf()
	out, err := b.f(pkt)
	switch {
	case err != nil:
		return nil, Abort(mbuf, err), true
	case out == nil:
		return nil, Drop(mbuf), true
	default:
		return out, nil, true
	}
}

// ForEachBatch runs a side effect on every packet and forwards it
// unchanged.
type ForEachBatch struct {
	source Batch
	fn     func(packets.Packet) error
}

// NewForEach chains a side effect onto source.
func NewForEach(source Batch, fn func(packets.Packet) error) *ForEachBatch {
	return &ForEachBatch{source: source, fn: fn}
}

func (b *ForEachBatch) Receive() { b.source.Receive() }

func (b *ForEachBatch) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.source.Next()
	if !ok || perr != nil {
		return nil, perr, ok
	}
	if err := b.fn(pkt); err != nil {
		return nil, Abort(pkt.Mbuf(), err), true
	}
	return pkt, nil, true
}

// EmitBatch interrupts processing with a short-circuit success: every
// packet reaching it is forwarded straight to the transmit queue.
type EmitBatch struct {
	source Batch
}

// NewEmit chains an emit onto source.
func NewEmit(source Batch) *EmitBatch {
	return &EmitBatch{source: source}
}

func (b *EmitBatch) Receive() { b.source.Receive() }

func (b *EmitBatch) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.source.Next()
	if !ok || perr != nil {
		return nil, perr, ok
	}
	return nil, Emit(pkt.Mbuf()), true
}
