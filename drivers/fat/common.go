// Package fat implements FAT12/16 image creation for PC, Atari ST and MSX
// floppies.

package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/retrodisk"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1 << iota

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings.
	AttrHidden = 1 << iota

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system.
	AttrSystem = 1 << iota

	// AttrVolumeLabel is an attribute flag that marks an entry as containing the true
	// volume label of the file system. It must reside in the root directory, and there
	// must be only one.
	AttrVolumeLabel = 1 << iota

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	AttrDirectory = 1 << iota

	// AttrArchived is an attribute flag set whenever the directory entry is created or
	// modified. Backup tools use this flag to determine whether the file needs to be
	// backed up or not.
	AttrArchived = 1 << iota
)

// Boot sector flavors.
const (
	VariantDOS = "dos"
	VariantST  = "st"
	VariantMSX = "msx"
)

// RawBPB is the BIOS parameter block, starting at offset 11 of the boot sector.
type RawBPB struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// RawFATBootSectorWithBPB is the on-disk representation of the start of a
// DOS or MSX boot sector.
type RawFATBootSectorWithBPB struct {
	JmpBoot [3]byte
	OEMName [8]byte
	RawBPB
}

// RawSTBootSectorWithBPB is the Atari ST flavor: a 68000 branch, a shorter OEM
// field and a 24-bit serial number take the place of the x86 jump and OEM
// name.
type RawSTBootSectorWithBPB struct {
	Branch  [2]byte
	OEMName [6]byte
	Serial  [3]byte
	RawBPB
}

// RawExtendedBPB follows the BPB on DOS 4.0+ disks.
type RawExtendedBPB struct {
	DriveNumber    uint8
	NTReserved     uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// DetermineFATVersion determines the version of the FAT file system based on the number
// of clusters on the system. (This is the only proper way to do so.)
func DetermineFATVersion(totalClusters uint) int {
	// These cluster counts, while odd-looking, are correct. They're taken directly from
	// Microsoft's FAT documentation, v1.03, page 14.
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}

// Params are the tunables of a FAT volume that aren't implied by its size.
type Params struct {
	SectorsPerCluster uint8
	RootEntries       uint16
	Media             uint8
	ReservedSectors   uint16
	NumFATs           uint8
}

var presets = map[string]Params{
	"dos/360KB":  {SectorsPerCluster: 2, RootEntries: 112, Media: 0xFD},
	"dos/720KB":  {SectorsPerCluster: 2, RootEntries: 112, Media: 0xF9},
	"dos/1.2MB":  {SectorsPerCluster: 1, RootEntries: 224, Media: 0xF9},
	"dos/1.44MB": {SectorsPerCluster: 1, RootEntries: 224, Media: 0xF0},
	"st/360KB":   {SectorsPerCluster: 2, RootEntries: 112, Media: 0xF8},
	"st/720KB":   {SectorsPerCluster: 2, RootEntries: 112, Media: 0xF9},
	"st/1.44MB":  {SectorsPerCluster: 2, RootEntries: 224, Media: 0xF0},
	"msx/360KB":  {SectorsPerCluster: 2, RootEntries: 112, Media: 0xF8},
	"msx/720KB":  {SectorsPerCluster: 2, RootEntries: 112, Media: 0xF9},
}

// PresetFor returns the standard parameters for a variant and size class.
func PresetFor(variant, size string) (Params, error) {
	params, ok := presets[variant+"/"+size]
	if !ok {
		return Params{}, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("no FAT parameters for %s disks of size %s", variant, size))
	}
	params.ReservedSectors = 1
	params.NumFATs = 2
	return params, nil
}

// Geometry is everything derived from the total size and [Params].
type Geometry struct {
	Params
	BytesPerSector  uint
	TotalSectors    uint
	SectorsPerFAT   uint
	RootDirSectors  uint
	FirstFATSector  uint
	FirstRootSector uint
	FirstDataSector uint
	TotalClusters   uint
	FATVersion      int
}

// ComputeGeometry sizes the FAT by iterating until the number of sectors the
// table needs stops changing.
func ComputeGeometry(params Params, bytesPerSector, totalSectors uint) (Geometry, error) {
	if params.SectorsPerCluster == 0 || params.NumFATs == 0 {
		return Geometry{}, retrodisk.ErrInvalidArgument.WithMessage(
			"sectors per cluster and number of FATs must be nonzero")
	}

	g := Geometry{
		Params:         params,
		BytesPerSector: bytesPerSector,
		TotalSectors:   totalSectors,
		RootDirSectors: (uint(params.RootEntries)*DirentSize + bytesPerSector - 1) / bytesPerSector,
		SectorsPerFAT:  1,
	}

	overhead := func() uint {
		return uint(params.ReservedSectors) + uint(params.NumFATs)*g.SectorsPerFAT + g.RootDirSectors
	}

	for i := 0; i < 8; i++ {
		if overhead() >= totalSectors {
			return Geometry{}, retrodisk.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("%d sectors is too small for a FAT volume", totalSectors))
		}
		g.TotalClusters = (totalSectors - overhead()) / uint(params.SectorsPerCluster)
		g.FATVersion = DetermineFATVersion(g.TotalClusters)

		entries := g.TotalClusters + 2
		var neededBytes uint
		switch g.FATVersion {
		case 12:
			neededBytes = (entries*3 + 1) / 2
		case 16:
			neededBytes = entries * 2
		default:
			return Geometry{}, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
				fmt.Sprintf("%d clusters would need FAT32", g.TotalClusters))
		}

		need := (neededBytes + bytesPerSector - 1) / bytesPerSector
		if need == g.SectorsPerFAT {
			break
		}
		g.SectorsPerFAT = need
	}

	g.FirstFATSector = uint(params.ReservedSectors)
	g.FirstRootSector = g.FirstFATSector + uint(params.NumFATs)*g.SectorsPerFAT
	g.FirstDataSector = g.FirstRootSector + g.RootDirSectors
	return g, nil
}

func (g Geometry) bpb(sectorsPerTrack, heads uint) RawBPB {
	bpb := RawBPB{
		BytesPerSector:    uint16(g.BytesPerSector),
		SectorsPerCluster: g.SectorsPerCluster,
		ReservedSectors:   g.ReservedSectors,
		NumFATs:           g.NumFATs,
		RootEntryCount:    g.RootEntries,
		Media:             g.Media,
		SectorsPerFAT16:   uint16(g.SectorsPerFAT),
		SectorsPerTrack:   uint16(sectorsPerTrack),
		NumHeads:          uint16(heads),
	}
	if g.TotalSectors <= 0xFFFF {
		bpb.TotalSectors16 = uint16(g.TotalSectors)
	} else {
		bpb.TotalSectors32 = uint32(g.TotalSectors)
	}
	return bpb
}

// The DOS boot code just prints a message and waits for a key, then reboots.
var dosBootCode = []byte{
	0x0E,             // push cs
	0x1F,             // pop ds
	0xBE, 0x77, 0x7C, // mov si, 0x7C77
	0xAC,       // lodsb
	0x22, 0xC0, // and al, al
	0x74, 0x0B, // jz +11
	0x56,       // push si
	0xB4, 0x0E, // mov ah, 0x0E
	0xBB, 0x07, 0x00, // mov bx, 0x0007
	0xCD, 0x10, // int 0x10
	0x5E,       // pop si
	0xEB, 0xF0, // jmp -16
	0x32, 0xE4, // xor ah, ah
	0xCD, 0x16, // int 0x16
	0xCD, 0x19, // int 0x19
	0xEB, 0xFE, // jmp $
}

const dosBootMessage = "Non-system disk or disk error\r\nReplace and press any key when ready\r\n\x00"

// BuildBootSector renders the boot sector for `variant`.
func BuildBootSector(
	variant string, g Geometry, sectorsPerTrack, heads uint, label string, serial uint32,
) ([]byte, error) {
	sector := make([]byte, g.BytesPerSector)
	writer := bytewriter.New(sector)
	bpb := g.bpb(sectorsPerTrack, heads)

	var err error
	switch variant {
	case VariantDOS:
		header := RawFATBootSectorWithBPB{JmpBoot: [3]byte{0xEB, 0x3C, 0x90}, RawBPB: bpb}
		copy(header.OEMName[:], "MSDOS5.0")
		if err = binary.Write(writer, binary.LittleEndian, &header); err != nil {
			return nil, err
		}

		extended := RawExtendedBPB{BootSignature: 0x29, VolumeID: serial}
		copy(extended.VolumeLabel[:], padLabel(label))
		copy(extended.FileSystemType[:], fmt.Sprintf("FAT%-5d", g.FATVersion))
		if err = binary.Write(writer, binary.LittleEndian, &extended); err != nil {
			return nil, err
		}

		copy(sector[62:], dosBootCode)
		copy(sector[119:], dosBootMessage)
		sector[510], sector[511] = 0x55, 0xAA

	case VariantMSX:
		header := RawFATBootSectorWithBPB{JmpBoot: [3]byte{0xEB, 0xFE, 0x90}, RawBPB: bpb}
		copy(header.OEMName[:], "RDISK   ")
		if err = binary.Write(writer, binary.LittleEndian, &header); err != nil {
			return nil, err
		}
		sector[510], sector[511] = 0x55, 0xAA

	case VariantST:
		header := RawSTBootSectorWithBPB{
			Branch: [2]byte{0x60, 0x38},
			Serial: [3]byte{byte(serial >> 16), byte(serial >> 8), byte(serial)},
			RawBPB: bpb,
		}
		copy(header.OEMName[:], "RDISK ")
		if err = binary.Write(writer, binary.LittleEndian, &header); err != nil {
			return nil, err
		}
		makeNonExecutableST(sector)

	default:
		return nil, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown FAT boot sector variant %q", variant))
	}

	return sector, nil
}

// STBootChecksum is the big-endian word sum of an ST boot sector. TOS executes
// the boot sector if it equals 0x1234.
func STBootChecksum(sector []byte) uint16 {
	sum := uint16(0)
	for i := 0; i+1 < len(sector); i += 2 {
		sum += binary.BigEndian.Uint16(sector[i:])
	}
	return sum
}

func makeNonExecutableST(sector []byte) {
	if STBootChecksum(sector) == 0x1234 {
		last := len(sector) - 2
		binary.BigEndian.PutUint16(sector[last:], binary.BigEndian.Uint16(sector[last:])+1)
	}
}

func padLabel(label string) []byte {
	field := []byte("           ")
	copy(field, label)
	return field
}
