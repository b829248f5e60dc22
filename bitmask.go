package arena

import (
	"math/bits"
)

// Bitmask is a 256-bit bitmask used for tracking which components an entity carries.
// It supports up to 256 unique component types.
type Bitmask [4]uint64

// Set sets the bit at the given index.
func (m *Bitmask) Set(id ComponentID) {
	m[id/64] |= 1 << (id % 64)
}

// Clear clears the bit at the given index.
func (m *Bitmask) Clear(id ComponentID) {
	m[id/64] &^= 1 << (id % 64)
}

// Has returns true if the bit at the given index is set.
func (m *Bitmask) Has(id ComponentID) bool {
	return m[id/64]&(1<<(id%64)) != 0
}

// ContainsAll returns true if all bits set in other are also set in m.
// Queries use it to check that every required component is present.
func (m *Bitmask) ContainsAll(other Bitmask) bool {
	return (m[0]&other[0] == other[0]) &&
		(m[1]&other[1] == other[1]) &&
		(m[2]&other[2] == other[2]) &&
		(m[3]&other[3] == other[3])
}

// ContainsAny returns true if any bit set in other is also set in m.
func (m *Bitmask) ContainsAny(other Bitmask) bool {
	return (m[0]&other[0] != 0) ||
		(m[1]&other[1] != 0) ||
		(m[2]&other[2] != 0) ||
		(m[3]&other[3] != 0)
}

// IsZero returns true if no bits are set.
func (m *Bitmask) IsZero() bool {
	return m[0] == 0 && m[1] == 0 && m[2] == 0 && m[3] == 0
}

// Or returns a new bitmask with bits set from both m and other.
func (m Bitmask) Or(other Bitmask) Bitmask {
	return Bitmask{
		m[0] | other[0],
		m[1] | other[1],
		m[2] | other[2],
		m[3] | other[3],
	}
}

// Count returns the number of bits set.
func (m *Bitmask) Count() int {
	return bits.OnesCount64(m[0]) +
		bits.OnesCount64(m[1]) +
		bits.OnesCount64(m[2]) +
		bits.OnesCount64(m[3])
}

// BitArray is a fixed-length bitset sized at creation.
// The spawner allocates one per batch to mark claimed spawn points.
type BitArray struct {
	words  []uint64
	length int
}

// NewBitArray returns a cleared bit array holding n bits.
func NewBitArray(n int) *BitArray {
	if n < 0 {
		n = 0
	}
	return &BitArray{
		words:  make([]uint64, (n+63)/64),
		length: n,
	}
}

// Len returns the number of bits in the array.
func (b *BitArray) Len() int {
	return b.length
}

// Set marks bit i. It panics if i is out of range.
func (b *BitArray) Set(i int) {
	b.check(i)
	b.words[i/64] |= 1 << (uint(i) % 64)
}

// IsSet reports whether bit i is marked. It panics if i is out of range.
func (b *BitArray) IsSet(i int) bool {
	b.check(i)
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Count returns the number of marked bits.
func (b *BitArray) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b *BitArray) check(i int) {
	if i < 0 || i >= b.length {
		panic("arena: bit index out of range")
	}
}
