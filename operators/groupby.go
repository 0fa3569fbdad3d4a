// Lazy group_by fan-out
package operators

import (
	"github.com/netsys/netbricks/packets"
)

// PipelineBuilder composes a sub-pipeline on top of a group's upstream
// batch.
type PipelineBuilder func(Batch) Batch

// GroupComposer collects the per-key sub-pipelines of a group_by. A
// catch-all default is mandatory; when the composer does not set one, the
// default forwards packets unchanged.
type GroupComposer[K comparable] struct {
	builders map[K]PipelineBuilder
	def      PipelineBuilder
}

// Group declares the sub-pipeline for one key.
func (c *GroupComposer[K]) Group(key K, build PipelineBuilder) {
	c.builders[key] = build
}

// Default declares the catch-all sub-pipeline.
func (c *GroupComposer[K]) Default(build PipelineBuilder) {
	c.def = build
}

// GroupByBatch splits the stream by a selector key and runs each packet
// through its group's sub-pipeline. Packets may interleave between groups
// but keep their order within a group.
type GroupByBatch[K comparable] struct {
	source   Batch
	selector func(packets.Packet) K
	producer *singleThreadedQueue
	groups   map[K]Batch
	def      Batch
}

// NewGroupBy builds the fan-out. Each input packet is enqueued into a
// capacity-1 queue and the matching group's Next is pulled once, so the
// sub-pipelines stay as lazy as the main chain.
func NewGroupBy[K comparable](source Batch, selector func(packets.Packet) K, compose func(*GroupComposer[K])) *GroupByBatch[K] {
	composer := &GroupComposer[K]{builders: make(map[K]PipelineBuilder)}
	compose(composer)

	queue := newSingleThreadedQueue(1)
	groups := make(map[K]Batch, len(composer.builders))
	for key, build := range composer.builders {
		groups[key] = build(&QueueBatch{queue: queue})
	}
	def := composer.def
	if def == nil {
		def = func(upstream Batch) Batch { return upstream }
	}

	return &GroupByBatch[K]{
		source:   source,
		selector: selector,
		producer: queue,
		groups:   groups,
		def:      def(&QueueBatch{queue: queue}),
	}
}

func (b *GroupByBatch[K]) Receive() { b.source.Receive() }

func (b *GroupByBatch[K]) Next() (packets.Packet, *PacketError, bool) {
	pkt, perr, ok := b.source.Next()
	if !ok || perr != nil {
		return nil, perr, ok
	}
	group, found := b.groups[b.selector(pkt)]
	if !found {
		group = b.def
	}
	b.producer.enqueue(pkt)
	out, operr, _ := group.Next()
	return out, operr, true
}
