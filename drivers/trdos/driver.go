package trdos

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a TR-DOS disk. Files occupy contiguous runs of sectors,
// numbered linearly from track 0 sector 0.
type Driver struct {
	layout    disks.Layout
	store     *c.BlockStore
	alloc     *c.Allocator
	label     string
	fileCount int
}

func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != SectorSize {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("TR-DOS sectors are %d bytes, not %d", SectorSize, layout.BytesPerBlock))
	}
	if layout.TotalBlocks%SectorsPerTrack != 0 || layout.TotalBlocks/SectorsPerTrack > 256 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("%d sectors is not a whole number of 16-sector tracks", layout.TotalBlocks))
	}

	alloc := c.NewAllocator(layout.TotalBlocks)
	// Track 0 holds the catalog and the system sector.
	if err := alloc.Reserve(0, SectorsPerTrack); err != nil {
		return nil, err
	}

	return &Driver{
		layout: layout,
		store:  c.NewBlockStore(SectorSize, layout.TotalBlocks, layout.HeaderBytes, 0),
		alloc:  alloc,
	}, nil
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "trdos",
		ByteOrder: binary.LittleEndian,
		Names:     c.AlnumRules(8, "FILE"),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

func (drv *Driver) FreeSectors() uint {
	return drv.alloc.FreeCount()
}

func (drv *Driver) Regions() []disks.Region {
	return []disks.Region{
		{Kind: disks.RegionDirectory, FirstBlock: 0, Blocks: CatalogSectors},
		{Kind: disks.RegionAllocationTable, FirstBlock: SystemSector, Blocks: 1},
		{
			Kind:       disks.RegionReserved,
			FirstBlock: SystemSector + 1,
			Blocks:     SectorsPerTrack - SystemSector - 1,
		},
	}
}

func (drv *Driver) Format(volumeName string, created time.Time) error {
	drv.label = c.AlnumRules(8, "").Sanitize(volumeName)
	return nil
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	if drv.fileCount >= MaxFiles {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("catalog holds %d files", MaxFiles))
	}

	sectors := c.ChunkCount(len(file.Content), SectorSize, 0)
	if sectors > MaxFileSectors || len(file.Content) > MaxFileBytes {
		return retrodisk.ErrFileTooLarge.WithMessage(
			fmt.Sprintf(
				"%d bytes in %d sectors: TR-DOS files are limited to %d sectors and %d bytes",
				len(file.Content),
				sectors,
				MaxFileSectors,
				MaxFileBytes))
	}

	base, _ := c.SplitExtension(file.Record.Name)
	file.Name = c.AlnumRules(8, "FILE").Sanitize(base)
	file.Units = uint(sectors)
	return nil
}

func (drv *Driver) Allocate(file *c.PendingFile) error {
	chain, err := drv.alloc.AllocateContiguous(file.Units)
	if err != nil {
		return err
	}
	file.Chain = chain
	return nil
}

func (drv *Driver) WriteData(file *c.PendingFile) error {
	for i, sector := range file.Chain {
		start := i * SectorSize
		end := start + SectorSize
		if end > len(file.Content) {
			end = len(file.Content)
		}
		data := make([]byte, SectorSize)
		copy(data, file.Content[start:end])
		if err := drv.store.Write(c.BlockID(sector), data); err != nil {
			return err
		}
		file.Entry.LastBlockBytes = end - start
	}
	return nil
}

// firstFree is where the next file will start. An empty file starts there too
// and takes no sectors.
func (drv *Driver) firstFree() uint {
	cursor := uint(drv.alloc.Cursor())
	if cursor < SectorsPerTrack {
		return SectorsPerTrack
	}
	return cursor
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	start := drv.firstFree()
	if len(file.Chain) > 0 {
		start = uint(file.Chain[0])
	}
	track, sector := ToTrackSector(start)
	fileType, startField := TypeFor(file.Record.Type, file.Record.LoadAddress, len(file.Content))

	dirent := RawDirent{
		Type:        fileType,
		Start:       startField,
		Length:      uint16(len(file.Content)),
		Sectors:     uint8(len(file.Chain)),
		FirstSector: sector,
		FirstTrack:  track,
	}
	copy(dirent.Name[:], c.PadName(file.Name, 8, ' '))

	offset := drv.fileCount * DirentSize
	err := drv.store.Update(c.BlockID(offset/SectorSize), func(data []byte) error {
		copy(data[offset%SectorSize:], dirent.Bytes())
		return nil
	})
	if err != nil {
		return err
	}

	drv.fileCount++
	file.Entry.Name = file.Name
	file.Entry.TypeCode = uint16(fileType)
	file.Entry.Start = uint32(start)
	return nil
}

// UpdateSummary rewrites the system sector.
func (drv *Driver) UpdateSummary() error {
	track, sector := ToTrackSector(drv.firstFree())
	info := RawDiskInfo{
		FirstFreeSector: sector,
		FirstFreeTrack:  track,
		DiskType:        DiskType80DS,
		FileCount:       uint8(drv.fileCount),
		FreeSectors:     uint16(drv.alloc.FreeCount()),
		ID:              TRDOSID,
	}
	copy(info.Blank[:], c.PadName("", len(info.Blank), ' '))
	copy(info.Label[:], c.PadName(drv.label, len(info.Label), ' '))

	return drv.store.Update(SystemSector, func(data []byte) error {
		copy(data[SystemOffset:], info.Bytes())
		return nil
	})
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
