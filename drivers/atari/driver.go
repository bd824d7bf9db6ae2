package atari

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds an Atari DOS 2 disk. Allocation units are DOS sector numbers,
// so unit 0 exists only to keep the numbering 1-based and is never free.
type Driver struct {
	layout     disks.Layout
	store      *c.BlockStore
	alloc      *c.Allocator
	sectorSize int
	// usable is the number of sectors DOS may ever allocate.
	usable    uint
	fileCount int
}

// New creates a driver for an ATR layout: "dos2" for 90 KB, 180 KB and 360 KB,
// "dos25" for the 130 KB enhanced density format.
func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != 128 && layout.BytesPerBlock != 256 {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("Atari sectors are 128 or 256 bytes, not %d", layout.BytesPerBlock))
	}
	if layout.HeaderBytes != ATRHeaderSize {
		return nil, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("ATR images have a %d-byte header, layout has %d", ATRHeaderSize, layout.HeaderBytes))
	}
	total := layout.TotalBlocks
	if total < 720 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("DOS 2 needs at least 720 sectors, got %d", total))
	}
	if layout.Variant == VariantDOS25 && (total <= VTOC2Sector || layout.BytesPerBlock != 128) {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			"DOS 2.5 needs an enhanced density disk")
	}

	alloc := c.NewAllocator(total + 1)
	reserved := [][2]uint{
		{0, 1 + BootSectors},
		{VTOCSector, LastDirectorySector - VTOCSector + 1},
		// DOS 2 never allocates sector 720.
		{720, 1},
	}
	if total > MaxLinkedSector {
		reserved = append(reserved, [2]uint{MaxLinkedSector + 1, total - MaxLinkedSector})
	}
	for _, run := range reserved {
		if err := alloc.Reserve(c.UnitID(run[0]), run[1]); err != nil {
			return nil, err
		}
	}

	return &Driver{
		layout:     layout,
		store:      c.NewBlockStore(layout.BytesPerBlock, total, ATRHeaderSize, 0),
		alloc:      alloc,
		sectorSize: int(layout.BytesPerBlock),
		usable:     alloc.FreeCount(),
	}, nil
}

func blockOf(sector c.UnitID) c.BlockID {
	return c.BlockID(sector - 1)
}

// bitmapSectors is the number of sectors covered by the VTOC bitmap. Double
// density disks larger than 720 sectors use the longer VTOC to map every
// sector a link can reach.
func (drv *Driver) bitmapSectors() uint {
	if drv.layout.Variant == VariantDOS25 || drv.layout.TotalBlocks <= 720 {
		return 720
	}
	return MaxLinkedSector + 1
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "atari-" + drv.layout.Variant,
		ByteOrder: binary.LittleEndian,
		Overhead:  TrailerSize,
		Names:     c.AlnumRules(8, "FILE"),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

// FreeSectors returns the number of sectors still available to files.
func (drv *Driver) FreeSectors() uint {
	return drv.alloc.FreeCount()
}

// UsableSectors returns the number of sectors DOS can allocate on an empty
// disk.
func (drv *Driver) UsableSectors() uint {
	return drv.usable
}

func (drv *Driver) Regions() []disks.Region {
	regions := []disks.Region{
		{Kind: disks.RegionBoot, FirstBlock: 0, Blocks: BootSectors},
		{Kind: disks.RegionAllocationTable, FirstBlock: uint(blockOf(VTOCSector)), Blocks: 1},
		{
			Kind:       disks.RegionDirectory,
			FirstBlock: uint(blockOf(FirstDirectorySector)),
			Blocks:     LastDirectorySector - FirstDirectorySector + 1,
		},
		{Kind: disks.RegionReserved, FirstBlock: uint(blockOf(720)), Blocks: 1},
	}

	total := drv.layout.TotalBlocks
	tail := uint(MaxLinkedSector + 1)
	if drv.layout.Variant == VariantDOS25 {
		regions = append(regions, disks.Region{
			Kind:       disks.RegionAllocationTable,
			FirstBlock: uint(blockOf(VTOC2Sector)),
			Blocks:     1,
		})
		tail++
	}
	if total >= tail {
		regions = append(regions, disks.Region{
			Kind:       disks.RegionReserved,
			FirstBlock: uint(blockOf(c.UnitID(tail))),
			Blocks:     total - tail + 1,
		})
	}
	return regions
}

// Format writes the ATR header. DOS 2 has no volume name, and the boot sectors
// stay empty: the disk holds no DOS.SYS to boot.
func (drv *Driver) Format(volumeName string, created time.Time) error {
	header := NewATRHeader(drv.layout.TotalBlocks, drv.layout.BytesPerBlock)
	return drv.store.WriteHeader(header.Bytes())
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	if drv.fileCount >= MaxFiles {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("directory holds %d files", MaxFiles))
	}

	name := c.SanitizeShortName(file.Record.Name, c.AlnumRules(8, "FILE"), c.AlnumRules(3, ""))
	file.Name = name.String()
	file.Units = uint(c.ChunkCount(len(file.Content), drv.sectorSize-TrailerSize, 1))
	return nil
}

func (drv *Driver) Allocate(file *c.PendingFile) error {
	chain, err := drv.alloc.Allocate(file.Units, nil)
	if err != nil {
		return err
	}
	file.Chain = chain
	return nil
}

// WriteData writes each sector with its trailer. The file number in the
// trailer is the index of the directory entry the file is about to get.
func (drv *Driver) WriteData(file *c.PendingFile) error {
	payload := drv.sectorSize - TrailerSize
	for i, sector := range file.Chain {
		start := i * payload
		end := start + payload
		if end > len(file.Content) {
			end = len(file.Content)
		}
		if start > end {
			start = end
		}

		next := uint(0)
		if i+1 < len(file.Chain) {
			next = uint(file.Chain[i+1])
		}
		trailer := Trailer(drv.fileCount, next, end-start)

		data := make([]byte, drv.sectorSize)
		copy(data, file.Content[start:end])
		copy(data[payload:], trailer[:])
		if err := drv.store.Write(blockOf(sector), data); err != nil {
			return err
		}
		file.Entry.LastBlockBytes = end - start
	}
	return nil
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	base, extension := c.SplitExtension(file.Name)
	dirent := RawDirent{
		Flags:       FlagInUse,
		SectorCount: uint16(len(file.Chain)),
		StartSector: uint16(file.Chain[0]),
	}
	copy(dirent.Name[:], c.PadName(base, 8, ' '))
	copy(dirent.Extension[:], c.PadName(extension, 3, ' '))

	sector := c.UnitID(FirstDirectorySector + drv.fileCount/DirentsPerSector)
	offset := (drv.fileCount % DirentsPerSector) * DirentSize
	err := drv.store.Update(blockOf(sector), func(data []byte) error {
		copy(data[offset:], dirent.Bytes())
		return nil
	})
	if err != nil {
		return err
	}

	drv.fileCount++
	file.Entry.Name = file.Name
	file.Entry.TypeCode = FlagInUse
	file.Entry.Start = uint32(file.Chain[0])
	return nil
}

// UpdateSummary rewrites the VTOC, and on DOS 2.5 disks the second VTOC that
// maps sectors 720-1023.
func (drv *Driver) UpdateSummary() error {
	vtoc := make([]byte, drv.sectorSize)
	vtoc[0] = DOSCode
	binary.LittleEndian.PutUint16(vtoc[1:], uint16(drv.usable))

	mapped := drv.bitmapSectors()
	binary.LittleEndian.PutUint16(vtoc[3:], uint16(drv.alloc.FreeInRange(0, mapped)))
	drv.alloc.EncodeFreeMap(vtoc[10:], 0, mapped, c.MSBFirst)
	if err := drv.store.Write(blockOf(VTOCSector), vtoc); err != nil {
		return err
	}

	if drv.layout.Variant != VariantDOS25 {
		return nil
	}

	// Bytes 0-83 repeat the VTOC bitmap for sectors 48-719.
	vtoc2 := make([]byte, drv.sectorSize)
	drv.alloc.EncodeFreeMap(vtoc2[0:], 48, 720-48, c.MSBFirst)
	drv.alloc.EncodeFreeMap(vtoc2[84:], 720, VTOC2Sector-720, c.MSBFirst)
	binary.LittleEndian.PutUint16(vtoc2[122:], uint16(drv.alloc.FreeInRange(720, VTOC2Sector-720)))
	return drv.store.Write(blockOf(VTOC2Sector), vtoc2)
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	fileCount := drv.fileCount
	return func() {
		drv.alloc.Restore(state)
		drv.fileCount = fileCount
	}
}

func (drv *Driver) Finalize() error {
	return nil
}
