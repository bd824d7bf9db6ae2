// Package trdos builds ZX Spectrum TR-DOS disks (.trd).
package trdos

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/retrodisk"
)

const SectorSize = 256

// SectorsPerTrack counts sectors on a logical track. Both sides of a cylinder
// are numbered as consecutive logical tracks.
const SectorsPerTrack = 16

const (
	CatalogSectors   = 8
	SystemSector     = 8
	SystemOffset     = 0xE1
	DirentSize       = 16
	MaxFiles         = 128
	MaxFileSectors   = 255
	MaxFileBytes     = 0xFFFF
	DiskType80DS     = 0x16
	TRDOSID          = 0x10
	DefaultCodeStart = 32768
	ScreenStart      = 16384
)

// File type letters.
const (
	TypeBasic = 'B'
	TypeCode  = 'C'
	TypeData  = 'D'
)

// RawDirent is one catalog entry.
type RawDirent struct {
	Name        [8]byte
	Type        uint8
	Start       uint16
	Length      uint16
	Sectors     uint8
	FirstSector uint8
	FirstTrack  uint8
}

func (d *RawDirent) Bytes() []byte {
	output := make([]byte, DirentSize)
	_ = binary.Write(bytewriter.New(output), binary.LittleEndian, d)
	return output
}

func ParseDirent(data []byte) (RawDirent, error) {
	var dirent RawDirent
	err := binary.Read(bytes.NewReader(data[:DirentSize]), binary.LittleEndian, &dirent)
	return dirent, err
}

func (d *RawDirent) DisplayName() string {
	return strings.TrimRight(string(d.Name[:]), " ")
}

// RawDiskInfo is the tail of the system sector, starting at offset 0xE1.
type RawDiskInfo struct {
	FirstFreeSector uint8
	FirstFreeTrack  uint8
	DiskType        uint8
	FileCount       uint8
	FreeSectors     uint16
	ID              uint8
	Reserved        [2]byte
	Blank           [9]byte
	Unused          uint8
	DeletedFiles    uint8
	Label           [8]byte
	Tail            [3]byte
}

func (info *RawDiskInfo) Bytes() []byte {
	output := make([]byte, SectorSize-SystemOffset)
	_ = binary.Write(bytewriter.New(output), binary.LittleEndian, info)
	return output
}

func ParseDiskInfo(sector []byte) (RawDiskInfo, error) {
	var info RawDiskInfo
	err := binary.Read(bytes.NewReader(sector[SystemOffset:]), binary.LittleEndian, &info)
	return info, err
}

// ToTrackSector splits a linear sector number.
func ToTrackSector(sector uint) (track, inTrack uint8) {
	return uint8(sector / SectorsPerTrack), uint8(sector % SectorsPerTrack)
}

// TypeFor picks the type letter and start field for a file. BASIC programs
// store their length in the start field; code files store the load address.
func TypeFor(fileType retrodisk.FileType, loadAddress uint32, size int) (uint8, uint16) {
	switch fileType {
	case retrodisk.FileTypeBasic:
		return TypeBasic, uint16(size)
	case retrodisk.FileTypeText, retrodisk.FileTypeData:
		return TypeData, 0
	}

	start := uint16(DefaultCodeStart)
	if fileType == retrodisk.FileTypeGraphics {
		start = ScreenStart
	}
	if loadAddress != 0 {
		start = uint16(loadAddress)
	}
	return TypeCode, start
}
