// Package amiga builds AmigaDOS Old File System (OFS) floppy images.
package amiga

import (
	"encoding/binary"
	"strings"
	"time"
)

const BlockSize = 512

// DataBytesPerBlock is the payload of an OFS data block after its 24-byte
// header.
const DataBytesPerBlock = BlockSize - 24

// HashTableSize is the number of slots in a directory's hash table, and also
// the number of data block pointers in a file header or extension block.
const HashTableSize = 72

const MaxNameLength = 30

// Primary block types.
const (
	TypeHeader = 2
	TypeData   = 8
	TypeList   = 16
)

// Secondary block types.
const (
	SecTypeRoot = 1
	SecTypeFile = 0xFFFFFFFD // -3
)

// Longword offsets within header, extension and data blocks.
const (
	offType          = 0
	offHeaderKey     = 4
	offHighSeq       = 8
	offHashTableSize = 12
	offDataSize      = 12
	offFirstData     = 16
	offNextData      = 16
	offChecksum      = 20
	offTable         = 24
	offTableEnd      = 308
	offBitmapFlag    = 312
	offBitmapPages   = 316
	offByteSize      = 324
	offDays          = 420
	offName          = 432
	offVolumeDays    = 472
	offCreationDays  = 484
	offHashChain     = 496
	offParent        = 500
	offExtension     = 504
	offSecType       = 508
)

// HashName gives the hash table slot of `name`. AmigaDOS names are case
// insensitive, so the hash is taken over the uppercased name.
func HashName(name string) int {
	hash := uint32(len(name))
	for _, ch := range []byte(strings.ToUpper(name)) {
		hash = (hash*13 + uint32(ch)) & 0x7FF
	}
	return int(hash % HashTableSize)
}

// BlockChecksum computes the longword that makes the 128 big-endian longwords
// of `data` sum to zero. The longword at `at` is ignored.
func BlockChecksum(data []byte, at int) uint32 {
	sum := uint32(0)
	for offset := 0; offset < BlockSize; offset += 4 {
		if offset != at {
			sum += binary.BigEndian.Uint32(data[offset:])
		}
	}
	return -sum
}

// BootChecksum computes the boot block checksum over both boot blocks: an
// end-around-carry sum of every longword except the checksum at offset 4,
// inverted.
func BootChecksum(data []byte) uint32 {
	sum := uint32(0)
	for offset := 0; offset < 2*BlockSize; offset += 4 {
		if offset == 4 {
			continue
		}
		next := sum + binary.BigEndian.Uint32(data[offset:])
		if next < sum {
			next++
		}
		sum = next
	}
	return ^sum
}

var epoch = time.Date(1978, 1, 1, 0, 0, 0, 0, time.UTC)

const ticksPerSecond = 50

// DateStamp is the AmigaDOS timestamp: days since 1 January 1978, minutes
// since midnight, and ticks (1/50 s) within the minute.
type DateStamp struct {
	Days    uint32
	Minutes uint32
	Ticks   uint32
}

// NewDateStamp converts `t`. Times before 1978 are clamped to the epoch.
func NewDateStamp(t time.Time) DateStamp {
	t = t.UTC()
	if t.Before(epoch) {
		return DateStamp{}
	}

	const day = 24 * time.Hour
	elapsed := t.Sub(epoch)
	rest := elapsed % day
	return DateStamp{
		Days:    uint32(elapsed / day),
		Minutes: uint32(rest / time.Minute),
		Ticks:   uint32((rest % time.Minute) / (time.Second / ticksPerSecond)),
	}
}

func (d DateStamp) AsTime() time.Time {
	return epoch.
		AddDate(0, 0, int(d.Days)).
		Add(time.Duration(d.Minutes) * time.Minute).
		Add(time.Duration(d.Ticks) * (time.Second / ticksPerSecond))
}

////////////////////////////////////////////////////////////////////////////////

// rawBlock is a block buffer with big-endian longword accessors.
type rawBlock []byte

func newBlock() rawBlock {
	return make(rawBlock, BlockSize)
}

func (b rawBlock) putLong(offset int, value uint32) {
	binary.BigEndian.PutUint32(b[offset:], value)
}

func (b rawBlock) putDate(offset int, stamp DateStamp) {
	b.putLong(offset, stamp.Days)
	b.putLong(offset+4, stamp.Minutes)
	b.putLong(offset+8, stamp.Ticks)
}

// putName stores `name` as a BCPL string: a length byte followed by up to 30
// characters.
func (b rawBlock) putName(offset int, name string) {
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	b[offset] = byte(len(name))
	copy(b[offset+1:], name)
}

// putTable fills the pointer table from the end: the first pointer goes in
// the last slot.
func (b rawBlock) putTable(pointers []uint32) {
	for i, pointer := range pointers {
		b.putLong(offTableEnd-4*i, pointer)
	}
}
