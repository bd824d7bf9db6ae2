// Package common contains definitions of fundamental types and functions used
// across multiple file system implementations.
package common

// BlockID is a 0-based index of a block within the addressable area of an
// image. Container headers are not counted.
type BlockID uint

// UnitID is an allocation unit in a format's own numbering: a block, a
// cluster, a granule, or a linear sector number.
type UnitID uint32

// Chain is the ordered list of units allocated to one file.
type Chain []UnitID

// Uint32s converts the chain for use in a [retrodisk.DirectoryEntry].
func (c Chain) Uint32s() []uint32 {
	result := make([]uint32, len(c))
	for i, unit := range c {
		result[i] = uint32(unit)
	}
	return result
}

// ChunkCount gives the number of `usable`-byte chunks needed to hold `size`
// bytes. Empty content needs `minimum` chunks.
func ChunkCount(size, usable, minimum int) int {
	count := (size + usable - 1) / usable
	if count < minimum {
		return minimum
	}
	return count
}
