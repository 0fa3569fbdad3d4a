// Per-flow byte-stream reassembly over a ring
package state

// InsertionKind classifies the outcome of a reordered-buffer insert.
type InsertionKind int

const (
	// Inserted means the whole segment was stored.
	Inserted InsertionKind = iota
	// OutOfMemory means the segment was beyond the window or only
	// partially stored.
	OutOfMemory
)

// InsertionResult reports how an insert went. Written counts the bytes
// stored by this call; Available counts the contiguous bytes now readable
// from the head of the stream.
type InsertionResult struct {
	Kind      InsertionKind
	Written   int
	Available int
}

// segment is a contiguous range of available bytes anchored at an
// absolute sequence number.
type segment struct {
	begin  uint32
	length int
}

func (s segment) end() uint32 { return s.begin + uint32(s.length) }

// ReorderedBuffer delivers in-order bytes from out-of-order transport
// segments. Data lives in a ring addressed by sequence number; a sorted
// list of disjoint segments tracks which ranges have arrived so gap
// closure is cheap to detect.
type ReorderedBuffer struct {
	ring        *RingBuffer
	size        int
	headSeq     uint32
	tailSeq     uint32
	established bool
	segments    []segment
}

// NewReorderedBuffer allocates a buffer of the given power-of-two
// capacity.
func NewReorderedBuffer(size int) (*ReorderedBuffer, error) {
	ring, err := NewRingBuffer(size)
	if err != nil {
		return nil, err
	}
	return &ReorderedBuffer{ring: ring, size: size}, nil
}

// Established reports whether the stream anchor has been accepted.
func (b *ReorderedBuffer) Established() bool { return b.established }

// HeadSeq returns the sequence number of the earliest buffered byte.
func (b *ReorderedBuffer) HeadSeq() uint32 { return b.headSeq }

// Seq anchors (or re-anchors) the stream at seq and stores data.
func (b *ReorderedBuffer) Seq(seq uint32, data []byte) InsertionResult {
	b.headSeq = seq
	b.tailSeq = seq
	b.segments = b.segments[:0]
	b.established = true
	return b.AddData(seq, data)
}

// AddData stores data at its sequence position. A segment entirely beyond
// the window is rejected; one that spans past the window edge is accepted
// partially.
func (b *ReorderedBuffer) AddData(seq uint32, data []byte) InsertionResult {
	offset := seq - b.headSeq
	if offset >= uint32(b.size) {
		return InsertionResult{Kind: OutOfMemory}
	}
	writable := b.size - int(offset)
	n := len(data)
	if n > writable {
		n = writable
	}
	if n > 0 {
		b.ring.WriteAtOffset(int(seq), data[:n])
		b.insertSegment(segment{begin: seq, length: n})
		if end := seq + uint32(n); end-b.headSeq > b.tailSeq-b.headSeq {
			b.tailSeq = end
		}
	}
	res := InsertionResult{Kind: Inserted, Written: n, Available: b.available()}
	if n < len(data) {
		res.Kind = OutOfMemory
	}
	return res
}

// ReadData copies contiguous bytes from the stream head into out and
// advances the head. Returns the bytes copied.
func (b *ReorderedBuffer) ReadData(out []byte) int {
	n := b.available()
	if n > len(out) {
		n = len(out)
	}
	if n == 0 {
		return 0
	}
	b.ring.ReadFromOffset(int(b.headSeq), out[:n])
	b.headSeq += uint32(n)
	first := &b.segments[0]
	first.begin += uint32(n)
	first.length -= n
	if first.length == 0 {
		b.segments = b.segments[1:]
	}
	return n
}

// Reset clears all state; the next Seq re-anchors the stream.
func (b *ReorderedBuffer) Reset() {
	b.headSeq = 0
	b.tailSeq = 0
	b.established = false
	b.segments = b.segments[:0]
	b.ring.Clear()
}

// available returns the contiguous byte count at the stream head.
func (b *ReorderedBuffer) available() int {
	if len(b.segments) == 0 || b.segments[0].begin != b.headSeq {
		return 0
	}
	return b.segments[0].length
}

// insertSegment adds a range and merges everything it touches, keeping
// the list sorted and disjoint.
func (b *ReorderedBuffer) insertSegment(s segment) {
	rel := func(seq uint32) uint32 { return seq - b.headSeq }

	out := make([]segment, 0, len(b.segments)+1)
	inserted := false
	for _, cur := range b.segments {
		switch {
		case rel(cur.end()) < rel(s.begin):
			out = append(out, cur)
		case rel(s.end()) < rel(cur.begin):
			if !inserted {
				out = append(out, s)
				inserted = true
			}
			out = append(out, cur)
		default:
			// Overlapping or adjacent: absorb cur into s.
			begin := s.begin
			if rel(cur.begin) < rel(begin) {
				begin = cur.begin
			}
			end := s.end()
			if rel(cur.end()) > rel(end) {
				end = cur.end()
			}
			s = segment{begin: begin, length: int(end - begin)}
		}
	}
	if !inserted {
		out = append(out, s)
	}
	b.segments = out
}
