// Package prodos builds Apple ProDOS volumes, as raw block images (.po, .hdv)
// or wrapped in a 2IMG container.
package prodos

import (
	"time"

	"github.com/dargueta/retrodisk"
)

const (
	BlockSize = 512

	// Directory entries are 39 bytes long and there are 13 of them per block,
	// after the 4-byte previous/next block links.
	EntryLength     = 0x27
	EntriesPerBlock = 0x0D

	FirstDirectoryBlock = 2
	LastDirectoryBlock  = 5
	BitmapStartBlock    = 6

	// MaxFiles is the capacity of the four volume directory blocks, minus the
	// volume header.
	MaxFiles = (LastDirectoryBlock-FirstDirectoryBlock+1)*EntriesPerBlock - 1

	// MaxFileSize is the largest EOF that fits in three bytes.
	MaxFileSize = 0xFFFFFF
)

// Storage types, stored in the high nybble of the first byte of an entry.
const (
	StorageSeedling     = 1
	StorageSapling      = 2
	StorageTree         = 3
	StorageVolumeHeader = 0xF
)

// Access bits for a file that can be read, written, renamed and destroyed.
const (
	AccessUnlocked       = 0xE3
	AccessVolumeUnlocked = 0xC3
)

// FileTypeInfo is the native type of a file.
type FileTypeInfo struct {
	Code uint8
	Aux  uint16
}

var fileTypes = map[retrodisk.FileType]FileTypeInfo{
	retrodisk.FileTypeBinary:   {Code: 0x06, Aux: 0x2000},
	retrodisk.FileTypeText:     {Code: 0x04},
	retrodisk.FileTypeBasic:    {Code: 0xFC, Aux: 0x0801},
	retrodisk.FileTypeGraphics: {Code: 0xC1, Aux: 0x0000},
	retrodisk.FileTypeData:     {Code: 0x06},
}

// TypeFor maps a file type hint to a ProDOS file type and aux type. A nonzero
// load address replaces the default aux type.
func TypeFor(fileType retrodisk.FileType, loadAddress uint32) FileTypeInfo {
	info, ok := fileTypes[fileType]
	if !ok {
		info = fileTypes[retrodisk.FileTypeBinary]
	}
	if loadAddress != 0 {
		info.Aux = uint16(loadAddress)
	}
	return info
}

// DateTime is the 4-byte ProDOS timestamp.
type DateTime struct {
	Date uint16
	Time uint16
}

// NewDateTime converts a time to ProDOS format. Years are stored modulo 100;
// ProDOS 2.4 reads 0-39 as 2000-2039.
func NewDateTime(t time.Time) DateTime {
	return DateTime{
		Date: uint16(t.Year()%100)<<9 | uint16(t.Month())<<5 | uint16(t.Day()),
		// Minute in the low byte, hour in the high byte.
		Time: uint16(t.Hour())<<8 | uint16(t.Minute()),
	}
}

// Time converts the timestamp back, resolving the century the ProDOS 2.4 way.
func (dt DateTime) AsTime() time.Time {
	year := int(dt.Date >> 9)
	if year < 40 {
		year += 2000
	} else {
		year += 1900
	}
	month := time.Month((dt.Date >> 5) & 0x0F)
	day := int(dt.Date & 0x1F)
	return time.Date(year, month, day, int(dt.Time>>8), int(dt.Time&0x3F), 0, 0, time.UTC)
}

// storageTypeFor gives the storage type of a file with `dataBlocks` data
// blocks.
func storageTypeFor(dataBlocks int) int {
	switch {
	case dataBlocks <= 1:
		return StorageSeedling
	case dataBlocks <= 256:
		return StorageSapling
	default:
		return StorageTree
	}
}

// indexBlocksFor gives the number of index blocks (including the master index
// block of a tree file) needed for `dataBlocks` data blocks.
func indexBlocksFor(dataBlocks int) int {
	switch storageTypeFor(dataBlocks) {
	case StorageSeedling:
		return 0
	case StorageSapling:
		return 1
	default:
		return 1 + (dataBlocks+255)/256
	}
}

// bitmapBlocksFor gives the number of blocks the volume bitmap occupies.
func bitmapBlocksFor(totalBlocks uint) uint {
	return (totalBlocks + BlockSize*8 - 1) / (BlockSize * 8)
}
