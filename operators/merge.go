// Merge operator: round-robin over composed pipelines
package operators

import (
	"github.com/netsys/netbricks/packets"
)

// MergeBatch alternates between its parents, draining one per tick. Used
// to join group_by branches or independent pipelines into one terminus.
type MergeBatch struct {
	parents []Batch
	which   int
}

// NewMerge joins pipelines into a single batch.
func NewMerge(parents ...Batch) *MergeBatch {
	return &MergeBatch{parents: parents}
}

// Receive refills the current parent. Next moves the round-robin on to the
// following parent once the current one is exhausted.
func (b *MergeBatch) Receive() {
	b.parents[b.which].Receive()
}

func (b *MergeBatch) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.parents[b.which].Next()
	if !ok {
		next := b.which + 1
		if next == len(b.parents) {
			next = 0
		}
		b.which = next
	}
	return pkt, perr, ok
}
