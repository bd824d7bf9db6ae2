package dfs

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a DFS disk with one catalog per side. Allocation units number
// the sectors of side 0 first, then side 1; on a .dsd image the tracks of the
// two sides alternate, so units are mapped to blocks by blockOf.
type Driver struct {
	layout   disks.Layout
	store    *c.BlockStore
	alloc    *c.Allocator
	perSide  uint
	catalogs []Catalog

	// Set by Allocate for AddEntry.
	pendingSide  int
	pendingStart uint
}

func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != SectorSize {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("DFS sectors are %d bytes, not %d", SectorSize, layout.BytesPerBlock))
	}

	sides := layout.Heads
	if sides != 1 && sides != 2 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("DFS disks have one or two sides, not %d", sides))
	}
	if layout.TotalBlocks%(sides*SectorsPerTrack) != 0 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("%d sectors don't divide into %d-sector tracks", layout.TotalBlocks, SectorsPerTrack))
	}
	perSide := layout.TotalBlocks / sides
	if perSide > MaxSideSectors {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("a side holds at most %d sectors, got %d", MaxSideSectors, perSide))
	}

	alloc := c.NewAllocator(layout.TotalBlocks)
	for side := uint(0); side < sides; side++ {
		if err := alloc.Reserve(c.UnitID(side*perSide), CatalogSectors); err != nil {
			return nil, err
		}
	}

	return &Driver{
		layout:   layout,
		store:    c.NewBlockStore(SectorSize, layout.TotalBlocks, layout.HeaderBytes, 0),
		alloc:    alloc,
		perSide:  perSide,
		catalogs: make([]Catalog, sides),
	}, nil
}

// blockOf converts an allocation unit into an image block.
func (drv *Driver) blockOf(unit c.UnitID) c.BlockID {
	if len(drv.catalogs) == 1 {
		return c.BlockID(unit)
	}
	side := uint(unit) / drv.perSide
	sector := uint(unit) % drv.perSide
	track := sector / SectorsPerTrack
	return c.BlockID((track*2+side)*SectorsPerTrack + sector%SectorsPerTrack)
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "dfs-" + drv.layout.Variant,
		ByteOrder: binary.LittleEndian,
		Names:     c.AlnumRules(NameLength, "FILE"),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

// Catalog returns a copy of the catalog of one side.
func (drv *Driver) Catalog(side int) Catalog {
	return drv.catalogs[side].clone()
}

func (drv *Driver) FreeSectors() uint {
	return drv.alloc.FreeCount()
}

func (drv *Driver) Regions() []disks.Region {
	regions := make([]disks.Region, 0, len(drv.catalogs))
	for side := range drv.catalogs {
		regions = append(regions, disks.Region{
			Kind:       disks.RegionDirectory,
			FirstBlock: uint(drv.blockOf(c.UnitID(uint(side) * drv.perSide))),
			Blocks:     CatalogSectors,
		})
	}
	return regions
}

// Format sets up an empty catalog on every side, all with the same title.
func (drv *Driver) Format(volumeName string, created time.Time) error {
	title := volumeName
	if len(title) > TitleLength {
		title = title[:TitleLength]
	}
	for side := range drv.catalogs {
		drv.catalogs[side] = Catalog{Title: title, SideSectors: drv.perSide}
	}
	return nil
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	roomy := false
	for side := range drv.catalogs {
		if len(drv.catalogs[side].Entries) < MaxFiles {
			roomy = true
		}
	}
	if !roomy {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("every catalog holds %d files", MaxFiles))
	}
	if len(file.Content) > MaxAddress {
		return retrodisk.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("DFS lengths are 18 bits, file is %d bytes", len(file.Content)))
	}

	directory, base := SplitName(file.Record.Name)
	file.Name = string(directory) + "." + c.AlnumRules(NameLength, "FILE").Sanitize(base)
	file.Units = uint(c.ChunkCount(len(file.Content), SectorSize, 0))
	return nil
}

// Allocate puts the file on the first side with room in its catalog and a
// long enough run of free sectors. Files are always contiguous.
func (drv *Driver) Allocate(file *c.PendingFile) error {
	var lastErr error = retrodisk.ErrDiskFull.WithMessage("no side has a free catalog slot")
	for side := range drv.catalogs {
		if len(drv.catalogs[side].Entries) >= MaxFiles {
			continue
		}

		lo := c.UnitID(uint(side) * drv.perSide)
		hi := uint(lo) + drv.perSide
		// A zero-length file sits where the next one would start.
		want := file.Units
		if want == 0 {
			want = 1
		}
		start, err := drv.alloc.FindContiguousFree(lo, hi, want)
		if err != nil {
			if file.Units > 0 {
				lastErr = err
				continue
			}
			start = c.UnitID(hi)
		}

		chain := make(c.Chain, file.Units)
		for i := range chain {
			chain[i] = start + c.UnitID(i)
			if err := drv.alloc.Claim(chain[i]); err != nil {
				return err
			}
		}

		file.Chain = chain
		drv.pendingSide = side
		drv.pendingStart = uint(start - lo)
		return nil
	}
	return lastErr
}

func (drv *Driver) WriteData(file *c.PendingFile) error {
	for i, unit := range file.Chain {
		start := i * SectorSize
		end := start + SectorSize
		if end > len(file.Content) {
			end = len(file.Content)
		}
		data := make([]byte, SectorSize)
		copy(data, file.Content[start:end])
		if err := drv.store.Write(drv.blockOf(unit), data); err != nil {
			return err
		}
		file.Entry.LastBlockBytes = end - start
	}
	return nil
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	directory := file.Name[0]
	address := uint32(DefaultAddress)
	if file.Record.LoadAddress != 0 {
		address = file.Record.LoadAddress & MaxAddress
	}

	catalog := &drv.catalogs[drv.pendingSide]
	catalog.Insert(CatalogEntry{
		Directory:   directory,
		Name:        file.Name[2:],
		Load:        address,
		Exec:        address,
		Length:      uint32(len(file.Content)),
		StartSector: drv.pendingStart,
	})
	catalog.BumpCycle()

	file.Entry.Name = file.Name
	file.Entry.TypeCode = uint16(directory)
	file.Entry.Start = uint32(uint(drv.pendingSide)*drv.perSide + drv.pendingStart)
	return nil
}

// UpdateSummary rewrites the catalog sectors of every side.
func (drv *Driver) UpdateSummary() error {
	for side := range drv.catalogs {
		names, info, err := drv.catalogs[side].Encode()
		if err != nil {
			return err
		}

		first := c.UnitID(uint(side) * drv.perSide)
		if err = drv.store.Write(drv.blockOf(first), names); err != nil {
			return err
		}
		if err = drv.store.Write(drv.blockOf(first+1), info); err != nil {
			return err
		}
	}
	return nil
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	catalogs := make([]Catalog, len(drv.catalogs))
	for i := range drv.catalogs {
		catalogs[i] = drv.catalogs[i].clone()
	}
	return func() {
		drv.alloc.Restore(state)
		drv.catalogs = catalogs
	}
}

func (drv *Driver) Finalize() error {
	return nil
}
