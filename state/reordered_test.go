package state

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/netsys/netbricks/common"
)

func seqBytes(start, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte((start + i) & 0xff)
	}
	return out
}

func TestRingBufferInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1, 3, 100} {
		var invalid common.InvalidRingSizeError
		if _, err := NewRingBuffer(size); !errors.As(err, &invalid) {
			t.Errorf("NewRingBuffer(%d) = %v, want InvalidRingSizeError", size, err)
		}
	}
}

func TestRingBufferOffsetWrap(t *testing.T) {
	rb, err := NewRingBuffer(4096)
	if err != nil {
		t.Fatalf("NewRingBuffer: %v", err)
	}
	input := []byte{1, 2, 3, 4}
	rb.WriteAtOffset(4095, input)
	out := make([]byte, len(input))
	rb.ReadFromOffset(4095, out)
	if !bytes.Equal(out, input) {
		t.Errorf("wrap read = %v, want %v", out, input)
	}
}

func TestRingBufferTailHead(t *testing.T) {
	rb, _ := NewRingBuffer(4096)
	input := seqBytes(0, 8192)
	written := rb.WriteAtTail(input)
	if written != 4095 {
		t.Fatalf("WriteAtTail = %d, want 4095", written)
	}
	out := make([]byte, 8192)
	read := rb.ReadFromHead(out)
	if read != written {
		t.Fatalf("ReadFromHead = %d, want %d", read, written)
	}
	if !bytes.Equal(out[:read], input[:read]) {
		t.Error("ring bytes differ from input")
	}
}

func TestReorderedInOrder(t *testing.T) {
	b, err := NewReorderedBuffer(2048)
	if err != nil {
		t.Fatalf("NewReorderedBuffer: %v", err)
	}
	res := b.Seq(1000, seqBytes(0, 100))
	if res.Kind != Inserted || res.Written != 100 || res.Available != 100 {
		t.Fatalf("Seq = %+v", res)
	}
	if !b.Established() {
		t.Error("not established after Seq")
	}

	out := make([]byte, 256)
	n := b.ReadData(out)
	if n != 100 || !bytes.Equal(out[:n], seqBytes(0, 100)) {
		t.Fatalf("ReadData = %d", n)
	}
	if b.HeadSeq() != 1100 {
		t.Errorf("HeadSeq = %d, want 1100", b.HeadSeq())
	}
}

// The spec's reconstruction scenario: segments 100/50, 200/50, 150/50 and
// a single read returning all 150 bytes.
func TestReorderedGapClose(t *testing.T) {
	b, _ := NewReorderedBuffer(2048)
	if res := b.Seq(100, seqBytes(0, 50)); res.Available != 50 {
		t.Fatalf("Seq available = %d", res.Available)
	}
	if res := b.AddData(200, seqBytes(100, 50)); res.Available != 50 {
		t.Fatalf("out-of-order insert available = %d", res.Available)
	}
	res := b.AddData(150, seqBytes(50, 50))
	if res.Kind != Inserted || res.Available != 150 {
		t.Fatalf("gap close = %+v, want available 150", res)
	}

	out := make([]byte, 256)
	n := b.ReadData(out)
	if n != 150 {
		t.Fatalf("ReadData = %d, want 150", n)
	}
	if !bytes.Equal(out[:n], seqBytes(0, 150)) {
		t.Error("reassembled bytes out of order")
	}
	if b.HeadSeq() != 250 {
		t.Errorf("HeadSeq = %d, want 250", b.HeadSeq())
	}
}

// Any permutation of a fully covering segment set yields the same ordered
// byte stream.
func TestReorderedPermutations(t *testing.T) {
	const segLen = 64
	const nSegs = 8
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		b, _ := NewReorderedBuffer(1024)
		order := rng.Perm(nSegs)

		b.Seq(5000, nil)
		for _, idx := range order {
			seq := uint32(5000 + idx*segLen)
			res := b.AddData(seq, seqBytes(idx*segLen, segLen))
			if res.Kind != Inserted {
				t.Fatalf("trial %d: insert %d = %+v", trial, idx, res)
			}
		}

		out := make([]byte, nSegs*segLen)
		n := b.ReadData(out)
		if n != nSegs*segLen {
			t.Fatalf("trial %d: read %d of %d", trial, n, nSegs*segLen)
		}
		if !bytes.Equal(out, seqBytes(0, nSegs*segLen)) {
			t.Fatalf("trial %d (order %v): bytes out of order", trial, order)
		}
	}
}

func TestReorderedBeyondWindow(t *testing.T) {
	b, _ := NewReorderedBuffer(256)
	b.Seq(0, seqBytes(0, 10))

	res := b.AddData(300, seqBytes(0, 10))
	if res.Kind != OutOfMemory || res.Written != 0 {
		t.Errorf("insert beyond window = %+v, want OutOfMemory/0", res)
	}

	// Spanning the window edge is a partial accept.
	res = b.AddData(250, seqBytes(0, 10))
	if res.Kind != OutOfMemory || res.Written != 6 {
		t.Errorf("spanning insert = %+v, want written 6", res)
	}
}

func TestReorderedOverlapMerge(t *testing.T) {
	b, _ := NewReorderedBuffer(256)
	b.Seq(0, seqBytes(0, 20))
	b.AddData(10, seqBytes(10, 30))
	res := b.AddData(35, seqBytes(35, 10))
	if res.Available != 45 {
		t.Errorf("overlap available = %d, want 45", res.Available)
	}
	out := make([]byte, 64)
	if n := b.ReadData(out); n != 45 || !bytes.Equal(out[:n], seqBytes(0, 45)) {
		t.Errorf("overlap read = %d", n)
	}
}

func TestReorderedReset(t *testing.T) {
	b, _ := NewReorderedBuffer(256)
	b.Seq(77, seqBytes(0, 40))
	b.Reset()
	if b.Established() || b.HeadSeq() != 0 {
		t.Error("state survived Reset")
	}
	if res := b.Seq(9, seqBytes(0, 8)); res.Kind != Inserted || res.Available != 8 {
		t.Errorf("Seq after Reset = %+v", res)
	}
}
