// Frame pool backing mbuf allocation
package native

import (
	"sync"

	"github.com/netsys/netbricks/common"
)

// Mempool is a fixed-size pool of frames. The pool is process-wide and
// thread-safe; every scheduler allocates and frees against it.
type Mempool struct {
	mu       sync.Mutex
	free     []*Mbuf
	capacity int
}

// NewMempool creates a pool of size frames. cacheSize is accepted for
// driver-configuration parity; the in-process pool has no per-core caches.
func NewMempool(size, cacheSize int) *Mempool {
	p := &Mempool{
		free:     make([]*Mbuf, 0, size),
		capacity: size,
	}
	slab := make([]byte, size*FrameSize)
	for i := 0; i < size; i++ {
		m := &Mbuf{
			buf:  slab[i*FrameSize : (i+1)*FrameSize : (i+1)*FrameSize],
			pool: p,
		}
		p.free = append(p.free, m)
	}
	return p
}

// Capacity returns the number of frames in the pool.
func (p *Mempool) Capacity() int {
	return p.capacity
}

// Available returns the number of free frames.
func (p *Mempool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Alloc takes one frame from the pool with an empty data region.
func (p *Mempool) Alloc() (*Mbuf, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocLocked()
}

func (p *Mempool) allocLocked() (*Mbuf, error) {
	n := len(p.free)
	if n == 0 {
		return nil, common.ErrFailedAllocation
	}
	m := p.free[n-1]
	p.free = p.free[:n-1]
	m.dataOff = Headroom
	m.dataLen = 0
	m.pktLen = 0
	m.refcnt = 1
	m.nbSegs = 1
	m.port = 0
	m.olFlags = 0
	m.vlanTCI = 0
	m.metadata = [MetadataSlots * 8]byte{}
	return m, nil
}

// AllocBulk fills out with frames whose data region is size bytes long.
// Either every slot is filled or none is.
func (p *Mempool) AllocBulk(out []*Mbuf, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < len(out) {
		return common.ErrFailedAllocation
	}
	for i := range out {
		m, _ := p.allocLocked()
		m.dataLen = uint16(size)
		m.pktLen = uint32(size)
		clear(m.buf[m.dataOff : int(m.dataOff)+size])
		out[i] = m
	}
	return nil
}

// Free drops one reference; the frame returns to the pool when the last
// reference is dropped.
func (p *Mempool) Free(m *Mbuf) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeLocked(m)
}

func (p *Mempool) freeLocked(m *Mbuf) {
	if m.refcnt > 1 {
		m.refcnt--
		return
	}
	m.refcnt = 0
	p.free = append(p.free, m)
}

// FreeBulk returns a batch of frames to the pool. Used by the drop path at
// the pipeline terminus.
func (p *Mempool) FreeBulk(ms []*Mbuf) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range ms {
		if m != nil {
			p.freeLocked(m)
		}
	}
}
