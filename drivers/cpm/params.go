// Package cpm builds CP/M 2.2 style disks as used by AMSDOS on the Amstrad CPC
// and +3DOS on the ZX Spectrum +3. Images are written in the extended CPCEMU
// container (EDSK).
package cpm

import (
	"fmt"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
)

const (
	SectorSize      = 512
	SectorsPerTrack = 9
	RecordSize      = 128
	// RecordsPerExtent is the size of one logical extent, 16 KiB.
	RecordsPerExtent = 128
	PointersPerEntry = 16
	DirentSize       = 32
	FillByte         = 0xE5
	// EOFMarker pads the tail of text files.
	EOFMarker = 0x1A
)

const (
	VariantAMSDOS = "amsdos"
	VariantPlus3  = "plus3"
)

// Params is the CP/M disk parameter block for one disk, plus the sector
// numbering the controller uses.
type Params struct {
	BlockSize      uint
	DirEntries     uint
	ReservedTracks uint
	// FirstSectorID is the ID of the first sector on every track.
	FirstSectorID uint8
	// ExtentMask is EXM: the number of logical extents beyond the first that
	// one directory entry can describe.
	ExtentMask uint
}

// ParamsFor picks the parameter block for a layout.
func ParamsFor(layout disks.Layout) (Params, error) {
	switch layout.Variant {
	case VariantAMSDOS:
		// The double-sided data format uses 2 KiB blocks to keep block
		// numbers within a byte.
		if layout.Heads == 2 {
			return Params{BlockSize: 2048, DirEntries: 128, FirstSectorID: 0xC1, ExtentMask: 1}, nil
		}
		return Params{BlockSize: 1024, DirEntries: 64, FirstSectorID: 0xC1}, nil
	case VariantPlus3:
		return Params{BlockSize: 1024, DirEntries: 64, ReservedTracks: 1, FirstSectorID: 1}, nil
	}
	return Params{}, retrodisk.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("unknown CP/M variant %q", layout.Variant))
}

// SectorsPerBlock gives the number of 512-byte sectors in an allocation block.
func (p Params) SectorsPerBlock() uint {
	return p.BlockSize / SectorSize
}

// DirectoryBlocks gives the number of allocation blocks the directory takes.
func (p Params) DirectoryBlocks() uint {
	return (p.DirEntries*DirentSize + p.BlockSize - 1) / p.BlockSize
}

// BytesPerEntry is the most content one directory entry can describe.
func (p Params) BytesPerEntry() int {
	return int(p.BlockSize) * PointersPerEntry
}

// TotalBlocks gives the number of allocation blocks after the reserved
// tracks. A partial block at the end of the disk is unused.
func (p Params) TotalBlocks(totalSectors uint) uint {
	dataSectors := totalSectors - p.ReservedTracks*SectorsPerTrack
	return dataSectors / p.SectorsPerBlock()
}

// SpecBlock is the 16-byte disk specification +3DOS keeps at the start of the
// reserved track.
func (p Params) SpecBlock(tracks uint, heads uint) []byte {
	spec := make([]byte, 16)
	if heads == 2 {
		spec[1] = 1
	}
	spec[2] = uint8(tracks)
	spec[3] = SectorsPerTrack
	spec[4] = 2 // 512-byte sectors
	spec[5] = uint8(p.ReservedTracks)
	spec[6] = blockShift(p.BlockSize)
	spec[7] = uint8(p.DirectoryBlocks())
	spec[8] = 0x2A
	spec[9] = 0x52
	return spec
}

// blockShift is log2 of the block size in records.
func blockShift(blockSize uint) uint8 {
	shift := uint8(0)
	for size := blockSize / RecordSize; size > 1; size >>= 1 {
		shift++
	}
	return shift
}
