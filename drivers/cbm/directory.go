package cbm

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/retrodisk"
)

// File type bytes, with the "closed" bit set.
const (
	TypeDEL = 0x80
	TypeSEQ = 0x81
	TypePRG = 0x82
	TypeUSR = 0x83
	TypeREL = 0x84
)

// DirentSize is the size of a directory slot. The first two bytes of the first
// slot in each sector are the sector's link, so an entry proper is 30 bytes.
const DirentSize = 32

// RawDirent is a directory entry without the two leading link bytes.
type RawDirent struct {
	FileType     uint8
	StartTrack   uint8
	StartSector  uint8
	Name         [16]byte
	SideTrack    uint8
	SideSector   uint8
	RecordLength uint8
	Unused       [6]byte
	Sectors      uint16
}

// TypeFor maps a type hint to a file type byte. Text and data become SEQ
// files; everything else is a PRG.
func TypeFor(fileType retrodisk.FileType) uint8 {
	switch fileType {
	case retrodisk.FileTypeText, retrodisk.FileTypeData:
		return TypeSEQ
	default:
		return TypePRG
	}
}

// Bytes serializes the entry into 30 bytes.
func (d *RawDirent) Bytes() []byte {
	output := make([]byte, DirentSize-2)
	_ = binary.Write(bytewriter.New(output), binary.LittleEndian, d)
	return output
}

// ParseDirent decodes the 32-byte slot `data`.
func ParseDirent(data []byte) (RawDirent, error) {
	var dirent RawDirent
	err := binary.Read(bytes.NewReader(data[2:DirentSize]), binary.LittleEndian, &dirent)
	return dirent, err
}

// DisplayName strips the padding from the name.
func (d *RawDirent) DisplayName() string {
	return string(bytes.TrimRight(d.Name[:], "\xa0"))
}
