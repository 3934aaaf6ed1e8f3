// internal/bitmap/bitmap.go

// Package bitmap provides a compact, growable bit vector. Column buffers use
// it for validity (non-null) masks and for bit-packed boolean values, and the
// artifact codec serializes it LSB-first, eight positions per byte.
package bitmap

import "math/bits"

// Bitmap is a bit vector backed by a slice of uint64 words. Positions are
// appended in order; Len reports how many positions exist.
type Bitmap struct {
	data []uint64
	n    int
}

// New allocates a bitmap with room for capacity positions before it needs to
// grow. The returned bitmap is empty (Len() == 0).
//
// If capacity <= 0, no backing storage is allocated up front.
func New(capacity int) *Bitmap {
	if capacity <= 0 {
		return &Bitmap{data: nil}
	}
	nWords := (capacity + 63) / 64
	return &Bitmap{
		data: make([]uint64, 0, nWords),
	}
}

// Len returns the number of positions in the bitmap.
func (b *Bitmap) Len() int { return b.n }

// Append adds one position with value v at index Len().
func (b *Bitmap) Append(v bool) {
	word := b.n / 64
	if word == len(b.data) {
		b.data = append(b.data, 0)
	}
	if v {
		b.data[word] |= 1 << uint(b.n%64)
	}
	b.n++
}

// Set sets the bit at id. Negative or out-of-range ids are ignored.
func (b *Bitmap) Set(id int) {
	if id < 0 || id >= b.n {
		return
	}
	b.data[id/64] |= 1 << uint(id%64)
}

// Has reports whether the bit at id is set. Negative or out-of-range ids
// always return false.
func (b *Bitmap) Has(id int) bool {
	if id < 0 || id >= b.n {
		return false
	}
	return (b.data[id/64] & (1 << uint(id%64))) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	c := 0
	for _, w := range b.data {
		c += bits.OnesCount64(w)
	}
	return c
}

// Reset empties the bitmap but keeps its storage.
func (b *Bitmap) Reset() {
	clear(b.data)
	b.data = b.data[:0]
	b.n = 0
}

// ByteLen returns the packed size in bytes of n positions.
func ByteLen(n int) int { return (n + 7) / 8 }

// AppendBytes appends the packed form (ByteLen(Len()) bytes, LSB-first) to dst.
func (b *Bitmap) AppendBytes(dst []byte) []byte {
	nb := ByteLen(b.n)
	for i := 0; i < nb; i++ {
		dst = append(dst, byte(b.data[i/8]>>(uint(i%8)*8)))
	}
	return dst
}

// FromBytes rebuilds a bitmap of n positions from its packed form. p must
// hold at least ByteLen(n) bytes; bits past n are ignored.
func FromBytes(p []byte, n int) *Bitmap {
	b := &Bitmap{data: make([]uint64, (n+63)/64), n: n}
	for i := 0; i < ByteLen(n) && i < len(p); i++ {
		b.data[i/8] |= uint64(p[i]) << (uint(i%8) * 8)
	}
	if tail := n % 64; tail != 0 && len(b.data) > 0 {
		b.data[len(b.data)-1] &= (1 << uint(tail)) - 1
	}
	return b
}
