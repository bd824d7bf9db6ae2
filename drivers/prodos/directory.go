package prodos

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// RawVolumeHeader is entry 0 of the first volume directory block.
type RawVolumeHeader struct {
	StorageTypeNameLength uint8
	VolumeName            [15]byte
	Reserved              [8]byte
	Creation              DateTime
	Version               uint8
	MinVersion            uint8
	Access                uint8
	EntryLength           uint8
	EntriesPerBlock       uint8
	FileCount             uint16
	BitmapPointer         uint16
	TotalBlocks           uint16
}

// RawFileEntry is a directory entry for a regular file.
type RawFileEntry struct {
	StorageTypeNameLength uint8
	FileName              [15]byte
	FileType              uint8
	KeyPointer            uint16
	BlocksUsed            uint16
	EOF                   [3]byte
	Creation              DateTime
	Version               uint8
	MinVersion            uint8
	Access                uint8
	AuxType               uint16
	LastModified          DateTime
	HeaderPointer         uint16
}

// StorageType returns the high nybble of the first byte.
func (e *RawFileEntry) StorageType() int {
	return int(e.StorageTypeNameLength >> 4)
}

// Name returns the file name.
func (e *RawFileEntry) Name() string {
	return string(e.FileName[:e.StorageTypeNameLength&0x0F])
}

// Size returns the 24-bit EOF.
func (e *RawFileEntry) Size() int {
	return int(e.EOF[0]) | int(e.EOF[1])<<8 | int(e.EOF[2])<<16
}

func setEOF(eof *[3]byte, size int) {
	eof[0] = byte(size)
	eof[1] = byte(size >> 8)
	eof[2] = byte(size >> 16)
}

func packName(storageType int, name string) (uint8, [15]byte) {
	var field [15]byte
	n := copy(field[:], name)
	return uint8(storageType<<4) | uint8(n), field
}

// serialize writes `value` as little-endian bytes.
func serialize(value interface{}, size int) []byte {
	output := make([]byte, size)
	// The buffer always matches the struct size, so this can't fail.
	_ = binary.Write(bytewriter.New(output), binary.LittleEndian, value)
	return output
}

// Bytes serializes the header.
func (h *RawVolumeHeader) Bytes() []byte {
	return serialize(h, EntryLength)
}

// Bytes serializes the entry.
func (e *RawFileEntry) Bytes() []byte {
	return serialize(e, EntryLength)
}

// ParseFileEntry decodes an entry read from a directory block.
func ParseFileEntry(data []byte) (RawFileEntry, error) {
	var entry RawFileEntry
	err := binary.Read(bytes.NewReader(data[:EntryLength]), binary.LittleEndian, &entry)
	return entry, err
}

// ParseVolumeHeader decodes the volume header from the first directory block.
func ParseVolumeHeader(block []byte) (RawVolumeHeader, error) {
	var header RawVolumeHeader
	err := binary.Read(bytes.NewReader(block[4:4+EntryLength]), binary.LittleEndian, &header)
	return header, err
}

// EntryLocation gives the directory block and byte offset of entry `index`.
// Entry 0 is the volume header.
func EntryLocation(index int) (block uint, offset int) {
	return uint(FirstDirectoryBlock + index/EntriesPerBlock), 4 + (index%EntriesPerBlock)*EntryLength
}
