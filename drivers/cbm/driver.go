package cbm

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a Commodore DOS disk. Allocation units are linear sector
// numbers, counting from 0 at track 1 sector 0.
type Driver struct {
	layout     disks.Layout
	geometry   Geometry
	store      *c.BlockStore
	alloc      *c.Allocator
	volumeName string
	fileCount  int
}

// New creates a driver for a d64, d71 or d81 layout.
func New(layout disks.Layout) (*Driver, error) {
	geometry, err := NewGeometry(layout.Variant)
	if err != nil {
		return nil, err
	}
	if layout.BytesPerBlock != SectorSize || layout.TotalBlocks != geometry.TotalSectors() {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf(
				"%s images have %d sectors of %d bytes, layout has %d of %d",
				layout.Variant,
				geometry.TotalSectors(),
				SectorSize,
				layout.TotalBlocks,
				layout.BytesPerBlock))
	}

	alloc := c.NewAllocator(geometry.TotalSectors())
	dirTrack := geometry.DirectoryTrack
	// Free sectors on the directory track stay free in the BAM, but file data
	// never goes there.
	err = alloc.Skip(geometry.ToUnit(dirTrack, 0), uint(geometry.SectorsPerTrack(dirTrack)))
	if err != nil {
		return nil, err
	}
	if geometry.Variant == VariantD71 {
		// The second BAM track is marked as entirely used.
		err = alloc.Reserve(geometry.ToUnit(53, 0), uint(geometry.SectorsPerTrack(53)))
		if err != nil {
			return nil, err
		}
	}

	return &Driver{
		layout:   layout,
		geometry: geometry,
		store:    c.NewBlockStore(SectorSize, geometry.TotalSectors(), layout.HeaderBytes, 0),
		alloc:    alloc,
	}, nil
}

// Geometry returns the track layout.
func (drv *Driver) Geometry() Geometry {
	return drv.geometry
}

// FreeSectors gives the "blocks free" figure, which excludes the directory
// track.
func (drv *Driver) FreeSectors() uint {
	return drv.alloc.FreeCount()
}

func nameRules() disks.NameRules {
	charset, err := disks.CharsetByName("petscii")
	if err != nil {
		panic(err)
	}
	return disks.NameRules{Charset: charset, MaxLength: 16, Placeholder: "FILE"}
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "cbm-" + drv.geometry.Variant,
		ByteOrder: binary.LittleEndian,
		Overhead:  2,
		Names:     nameRules(),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

func (drv *Driver) Regions() []disks.Region {
	g := drv.geometry
	dirStart := uint(g.ToUnit(g.DirectoryTrack, 0))
	dirSectors := uint(g.SectorsPerTrack(g.DirectoryTrack))

	if g.Variant == VariantD81 {
		return []disks.Region{
			{Kind: disks.RegionDirectory, FirstBlock: dirStart, Blocks: 1},
			{Kind: disks.RegionAllocationTable, FirstBlock: dirStart + 1, Blocks: 2},
			{Kind: disks.RegionDirectory, FirstBlock: dirStart + 3, Blocks: dirSectors - 3},
		}
	}

	regions := []disks.Region{
		{Kind: disks.RegionAllocationTable, FirstBlock: dirStart, Blocks: 1},
		{Kind: disks.RegionDirectory, FirstBlock: dirStart + 1, Blocks: dirSectors - 1},
	}
	if g.Variant == VariantD71 {
		bamStart := uint(g.ToUnit(53, 0))
		regions = append(
			regions,
			disks.Region{Kind: disks.RegionAllocationTable, FirstBlock: bamStart, Blocks: 1},
			disks.Region{
				Kind:       disks.RegionReserved,
				FirstBlock: bamStart + 1,
				Blocks:     uint(g.SectorsPerTrack(53)) - 1,
			})
	}
	return regions
}

func (drv *Driver) Format(volumeName string, created time.Time) error {
	g := drv.geometry
	drv.volumeName = nameRules().Sanitize(volumeName)

	// Header and BAM sectors.
	claimed := []int{0}
	if g.Variant == VariantD81 {
		claimed = append(claimed, 1, 2)
		err := drv.store.Write(c.BlockID(g.ToUnit(g.DirectoryTrack, 0)), renderD81Header(drv.volumeName))
		if err != nil {
			return err
		}
	}
	for _, sector := range claimed {
		if err := drv.alloc.Claim(g.ToUnit(g.DirectoryTrack, sector)); err != nil {
			return err
		}
	}

	return drv.startDirectorySector(0)
}

// startDirectorySector claims the `index`th directory sector and initializes
// it as the last one in the chain.
func (drv *Driver) startDirectorySector(index int) error {
	g := drv.geometry
	unit := g.ToUnit(g.DirectoryTrack, g.DirectorySectors[index])
	if err := drv.alloc.Claim(unit); err != nil {
		return err
	}

	sector := make([]byte, SectorSize)
	sector[1] = 0xFF
	if err := drv.store.Write(c.BlockID(unit), sector); err != nil {
		return err
	}
	if index == 0 {
		return nil
	}

	previous := g.ToUnit(g.DirectoryTrack, g.DirectorySectors[index-1])
	return drv.store.Update(c.BlockID(previous), func(data []byte) error {
		data[0] = byte(g.DirectoryTrack)
		data[1] = byte(g.DirectorySectors[index])
		return nil
	})
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	if drv.fileCount >= drv.geometry.MaxEntries() {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("directory holds %d entries", drv.geometry.MaxEntries()))
	}
	file.Name = nameRules().Sanitize(file.Record.Name)
	file.Units = uint(c.ChunkCount(len(file.Content), BytesPerSector, 1))
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

// WriteData writes each sector with a link to the next. The last sector's link
// is track 0 and the index of the last byte used, i.e. used + 1.
func (drv *Driver) WriteData(file *c.PendingFile) error {
	for i, unit := range file.Chain {
		sector := make([]byte, SectorSize)
		start := i * BytesPerSector
		end := start + BytesPerSector
		if end > len(file.Content) {
			end = len(file.Content)
		}
		if start > end {
			start = end
		}
		copy(sector[2:], file.Content[start:end])

		if i+1 < len(file.Chain) {
			track, s := drv.geometry.FromUnit(file.Chain[i+1])
			sector[0], sector[1] = byte(track), byte(s)
		} else {
			used := end - start
			sector[0], sector[1] = 0, byte(used+1)
			file.Entry.LastBlockBytes = used
		}

		if err := drv.store.Write(c.BlockID(unit), sector); err != nil {
			return err
		}
	}
	return nil
}

func (drv *Driver) direntLocation(index int) (c.BlockID, int) {
	g := drv.geometry
	unit := g.ToUnit(g.DirectoryTrack, g.DirectorySectors[index/8])
	return c.BlockID(unit), (index % 8) * DirentSize
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	if drv.fileCount > 0 && drv.fileCount%8 == 0 {
		if err := drv.startDirectorySector(drv.fileCount / 8); err != nil {
			return err
		}
	}

	track, sector := drv.geometry.FromUnit(file.Chain[0])
	dirent := RawDirent{
		FileType:    TypeFor(file.Record.Type),
		StartTrack:  uint8(track),
		StartSector: uint8(sector),
		Sectors:     uint16(len(file.Chain)),
	}
	copy(dirent.Name[:], c.PadName(file.Name, 16, padByte))

	block, offset := drv.direntLocation(drv.fileCount)
	err := drv.store.Update(block, func(data []byte) error {
		copy(data[offset+2:offset+DirentSize], dirent.Bytes())
		return nil
	})
	if err != nil {
		return err
	}

	drv.fileCount++
	file.Entry.Name = file.Name
	file.Entry.TypeCode = uint16(dirent.FileType)
	file.Entry.Start = uint32(file.Chain[0])
	return nil
}

// UpdateSummary rewrites the BAM.
func (drv *Driver) UpdateSummary() error {
	g := drv.geometry
	bamUnit := g.ToUnit(g.DirectoryTrack, 0)

	switch g.Variant {
	case VariantD81:
		for part := 1; part <= 2; part++ {
			err := drv.store.Write(c.BlockID(bamUnit+c.UnitID(part)), renderD81BAM(g, drv.alloc, part))
			if err != nil {
				return err
			}
		}
		return nil

	case VariantD71:
		err := drv.store.Write(c.BlockID(g.ToUnit(53, 0)), renderD71SecondBAM(g, drv.alloc))
		if err != nil {
			return err
		}
	}
	return drv.store.Write(c.BlockID(bamUnit), renderD64BAM(g, drv.alloc, drv.volumeName))
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
