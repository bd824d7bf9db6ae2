// Package atari builds Atari DOS 2.0S and 2.5 disks in the ATR container.
package atari

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/noxer/bytewriter"
)

const ATRHeaderSize = 16
const ATRMagic = 0x0296

// Sector numbers are 1-based, as DOS sees them.
const (
	BootSectors          = 3
	VTOCSector           = 360
	FirstDirectorySector = 361
	LastDirectorySector  = 368
	VTOC2Sector          = 1024
	// MaxLinkedSector is the highest sector a 10-bit link can point to.
	MaxLinkedSector = 1023
)

const (
	DirentSize       = 16
	DirentsPerSector = 8
	MaxFiles         = 64
	TrailerSize      = 3
	FlagInUse        = 0x42
	DOSCode          = 2
)

const (
	VariantDOS2  = "dos2"
	VariantDOS25 = "dos25"
)

// RawATRHeader is the 16-byte header of an ATR image. The image size is
// counted in 16-byte paragraphs.
type RawATRHeader struct {
	Magic          uint16
	ParagraphsLow  uint16
	SectorSize     uint16
	ParagraphsHigh uint8
	Unused         [9]byte
}

func NewATRHeader(totalSectors, sectorSize uint) RawATRHeader {
	paragraphs := totalSectors * sectorSize / 16
	return RawATRHeader{
		Magic:          ATRMagic,
		ParagraphsLow:  uint16(paragraphs),
		SectorSize:     uint16(sectorSize),
		ParagraphsHigh: uint8(paragraphs >> 16),
	}
}

func (h *RawATRHeader) Bytes() []byte {
	output := make([]byte, ATRHeaderSize)
	_ = binary.Write(bytewriter.New(output), binary.LittleEndian, h)
	return output
}

func ParseATRHeader(data []byte) (RawATRHeader, error) {
	var header RawATRHeader
	err := binary.Read(bytes.NewReader(data[:ATRHeaderSize]), binary.LittleEndian, &header)
	return header, err
}

// RawDirent is one directory entry.
type RawDirent struct {
	Flags       uint8
	SectorCount uint16
	StartSector uint16
	Name        [8]byte
	Extension   [3]byte
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

// DisplayName returns NAME.EXT without padding.
func (d *RawDirent) DisplayName() string {
	name := strings.TrimRight(string(d.Name[:]), " ")
	extension := strings.TrimRight(string(d.Extension[:]), " ")
	if extension == "" {
		return name
	}
	return name + "." + extension
}

// Trailer builds the last three bytes of a data sector: the file number and
// the high bits of the next sector, the low byte of the next sector, and the
// number of data bytes in this sector.
func Trailer(fileNumber int, next uint, used int) [TrailerSize]byte {
	return [TrailerSize]byte{
		byte(fileNumber<<2) | byte(next>>8)&0x03,
		byte(next),
		byte(used),
	}
}
