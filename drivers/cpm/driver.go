package cpm

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a CP/M disk. Allocation units are CP/M blocks, numbered from
// the first sector after the reserved tracks; the directory takes the first
// blocks. CP/M keeps no allocation table on disk, so the directory is the only
// structure written.
type Driver struct {
	layout         disks.Layout
	params         Params
	store          *c.BlockStore
	alloc          *c.Allocator
	blocks         *c.ClusterStream
	container      Container
	directoryStart c.BlockID
	usedEntries    int
}

func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != SectorSize {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("CP/M disks here have %d-byte sectors, not %d", SectorSize, layout.BytesPerBlock))
	}
	if layout.SectorsPerTrack != SectorsPerTrack || layout.Heads == 0 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("expected %d sectors per track, got %d", SectorsPerTrack, layout.SectorsPerTrack))
	}
	if layout.Tracks*layout.Heads*SectorsPerTrack != layout.TotalBlocks {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf(
				"%d tracks x %d sides x %d sectors is not %d sectors",
				layout.Tracks,
				layout.Heads,
				SectorsPerTrack,
				layout.TotalBlocks))
	}

	params, err := ParamsFor(layout)
	if err != nil {
		return nil, err
	}
	totalUnits := params.TotalBlocks(layout.TotalBlocks)
	if totalUnits > 256 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("%d blocks need 16-bit block pointers", totalUnits))
	}

	store := c.NewBlockStore(SectorSize, layout.TotalBlocks, layout.HeaderBytes, FillByte)
	firstSector := c.BlockID(params.ReservedTracks * SectorsPerTrack)
	blocks, err := c.NewClusterStream(
		store,
		params.SectorsPerBlock(),
		firstSector,
		0,
		c.UnitID(totalUnits-1),
	)
	if err != nil {
		return nil, err
	}

	alloc := c.NewAllocator(totalUnits)
	if err = alloc.Reserve(0, params.DirectoryBlocks()); err != nil {
		return nil, err
	}

	return &Driver{
		layout: layout,
		params: params,
		store:  store,
		alloc:  alloc,
		blocks: blocks,
		container: Container{
			Tracks:        layout.Tracks,
			Sides:         layout.Heads,
			FirstSectorID: params.FirstSectorID,
		},
		directoryStart: firstSector,
	}, nil
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "cpm-" + drv.layout.Variant,
		ByteOrder: binary.LittleEndian,
		Fill:      FillByte,
		Names:     c.AlnumRules(8, "FILE"),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

func (drv *Driver) Params() Params {
	return drv.params
}

// FreeBlocks returns the number of allocation blocks not yet used.
func (drv *Driver) FreeBlocks() uint {
	return drv.alloc.FreeCount()
}

// FreeEntries returns the number of unused directory entries.
func (drv *Driver) FreeEntries() int {
	return int(drv.params.DirEntries) - drv.usedEntries
}

func (drv *Driver) Regions() []disks.Region {
	var regions []disks.Region
	if drv.params.ReservedTracks > 0 {
		regions = append(regions, disks.Region{
			Kind:       disks.RegionBoot,
			FirstBlock: 0,
			Blocks:     drv.params.ReservedTracks * SectorsPerTrack,
		})
	}
	return append(regions, disks.Region{
		Kind:       disks.RegionDirectory,
		FirstBlock: uint(drv.directoryStart),
		Blocks:     drv.params.DirectoryBlocks() * drv.params.SectorsPerBlock(),
	})
}

// Format writes the +3DOS disk specification if the disk has a reserved track.
// The directory needs nothing: an entry filled with 0xE5 is unused. Neither
// AMSDOS nor +3DOS has a volume name.
func (drv *Driver) Format(volumeName string, created time.Time) error {
	if drv.params.ReservedTracks == 0 {
		return nil
	}
	spec := drv.params.SpecBlock(drv.layout.Tracks, drv.layout.Heads)
	return drv.store.Update(0, func(data []byte) error {
		copy(data, spec)
		return nil
	})
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	needed := drv.params.EntriesFor(len(file.Content))
	if needed > drv.FreeEntries() {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf(
				"file needs %d directory entries, %d left",
				needed,
				drv.FreeEntries()))
	}

	name := c.SanitizeShortName(file.Record.Name, c.AlnumRules(8, "FILE"), c.AlnumRules(3, ""))
	file.Name = name.String()
	file.Units = uint(c.ChunkCount(len(file.Content), int(drv.params.BlockSize), 0))
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

// WriteData fills the tail of a text file's last block with ^Z.
func (drv *Driver) WriteData(file *c.PendingFile) error {
	fill := byte(FillByte)
	if file.Record.Type == retrodisk.FileTypeText {
		fill = EOFMarker
	}
	if err := drv.blocks.WriteChain(file.Chain, file.Content, fill); err != nil {
		return err
	}

	if len(file.Chain) > 0 {
		blockSize := int(drv.params.BlockSize)
		file.Entry.LastBlockBytes = len(file.Content) - (len(file.Chain)-1)*blockSize
	}
	return nil
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	base, extension := c.SplitExtension(file.Name)
	name := c.ShortName{Base: base, Extension: extension}
	entries := drv.params.BuildEntries(name, len(file.Content), file.Chain)
	for _, dirent := range entries {
		offset := drv.usedEntries * DirentSize
		block := drv.directoryStart + c.BlockID(offset/SectorSize)
		err := drv.store.Update(block, func(data []byte) error {
			copy(data[offset%SectorSize:], dirent.Bytes())
			return nil
		})
		if err != nil {
			return err
		}
		drv.usedEntries++
	}

	file.Entry.Name = file.Name
	if len(file.Chain) > 0 {
		file.Entry.Start = uint32(file.Chain[0])
	}
	return nil
}

func (drv *Driver) UpdateSummary() error {
	return nil
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	usedEntries := drv.usedEntries
	return func() {
		drv.alloc.Restore(state)
		drv.usedEntries = usedEntries
	}
}

func (drv *Driver) Finalize() error {
	return nil
}

// WrapImage puts the sectors into an EDSK container.
func (drv *Driver) WrapImage(raw []byte) ([]byte, error) {
	return drv.container.Wrap(raw)
}
