// Package rsdos builds TRS-80 Color Computer Disk BASIC disks (.dsk).
package rsdos

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/retrodisk"
	c "github.com/dargueta/retrodisk/drivers/common"
)

const (
	SectorSize        = 256
	SectorsPerTrack   = 18
	SectorsPerGranule = 9
	GranulesPerTrack  = SectorsPerTrack / SectorsPerGranule
	BytesPerGranule   = SectorsPerGranule * SectorSize
	DirectoryTrack    = 17
)

// Sector indexes within the directory track, counting from 0. Disk BASIC
// numbers them from 1, so the GAT is its sector 2.
const (
	GATSector            = 1
	FirstDirectorySector = 2
	DirectorySectors     = 9
)

const (
	DirentSize       = 32
	DirentsPerSector = SectorSize / DirentSize
	MaxFiles         = DirectorySectors * DirentsPerSector

	// GranuleFree marks an unused granule in the GAT.
	GranuleFree = 0xFF
	// LastGranule is ORed with the number of sectors used in a file's final
	// granule.
	LastGranule = 0xC0
)

// File type codes.
const (
	TypeBasic       = 0
	TypeData        = 1
	TypeMachineCode = 2
	TypeText        = 3
)

const (
	FlagBinary = 0x00
	FlagASCII  = 0xFF
)

// Geometry describes a single-sided disk with 35 or 40 tracks.
type Geometry struct {
	Tracks         uint
	Granules       uint
	GATBlock       c.BlockID
	DirectoryStart c.BlockID
}

func GetGeometry(totalBlocks uint) (Geometry, error) {
	if totalBlocks%SectorsPerTrack != 0 {
		return Geometry{}, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("%d sectors is not a whole number of %d-sector tracks", totalBlocks, SectorsPerTrack))
	}

	tracks := totalBlocks / SectorsPerTrack
	if tracks != 35 && tracks != 40 {
		return Geometry{}, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("bad number of tracks; expected 35 or 40, got %d", tracks))
	}

	trackStart := c.BlockID(DirectoryTrack * SectorsPerTrack)
	return Geometry{
		Tracks:         tracks,
		Granules:       (tracks - 1) * GranulesPerTrack,
		GATBlock:       trackStart + GATSector,
		DirectoryStart: trackStart + FirstDirectorySector,
	}, nil
}

// GranuleToBlock returns the first sector of a granule. Granules are numbered
// across the disk without the directory track.
func GranuleToBlock(granule c.UnitID) c.BlockID {
	track := uint(granule) / GranulesPerTrack
	if track >= DirectoryTrack {
		track++
	}
	half := uint(granule) % GranulesPerTrack
	return c.BlockID(track*SectorsPerTrack + half*SectorsPerGranule)
}

// RawDirent is one directory entry. The first byte of the name is 0xFF for an
// entry that was never used and 0x00 for a deleted one.
type RawDirent struct {
	Name            [8]byte
	Extension       [3]byte
	Type            uint8
	ASCII           uint8
	FirstGranule    uint8
	LastSectorBytes uint16
	Reserved        [16]byte
}

func (d *RawDirent) Bytes() []byte {
	output := make([]byte, DirentSize)
	_ = binary.Write(bytewriter.New(output), binary.BigEndian, d)
	return output
}

func ParseDirent(data []byte) (RawDirent, error) {
	var dirent RawDirent
	err := binary.Read(bytes.NewReader(data[:DirentSize]), binary.BigEndian, &dirent)
	return dirent, err
}

// DisplayName converts the on-disk name into its user-friendly form.
func (d *RawDirent) DisplayName() string {
	stem := bytes.TrimRight(d.Name[:], " ")
	extension := bytes.TrimRight(d.Extension[:], " ")
	if len(extension) > 0 {
		return string(stem) + "." + string(extension)
	}
	return string(stem)
}

// TypeFor gives the directory type code and ASCII flag for a file.
func TypeFor(fileType retrodisk.FileType) (uint8, uint8) {
	switch fileType {
	case retrodisk.FileTypeBasic:
		return TypeBasic, FlagBinary
	case retrodisk.FileTypeText:
		return TypeData, FlagASCII
	case retrodisk.FileTypeData:
		return TypeData, FlagBinary
	}
	return TypeMachineCode, FlagBinary
}

// SectorsInLastGranule decodes a terminal GAT entry.
func SectorsInLastGranule(entry byte) (int, bool) {
	if entry&LastGranule != LastGranule || entry == GranuleFree {
		return 0, false
	}
	return int(entry &^ LastGranule), true
}
