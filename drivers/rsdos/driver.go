package rsdos

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a Disk BASIC disk. Allocation units are granules, and the
// granule allocation table (GAT) links them into files.
type Driver struct {
	layout    disks.Layout
	geometry  Geometry
	store     *c.BlockStore
	alloc     *c.Allocator
	granules  *c.ClusterStream
	gat       []byte
	fileCount int
}

func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != SectorSize {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("Disk BASIC sectors are %d bytes, not %d", SectorSize, layout.BytesPerBlock))
	}
	geometry, err := GetGeometry(layout.TotalBlocks)
	if err != nil {
		return nil, err
	}

	store := c.NewBlockStore(SectorSize, layout.TotalBlocks, layout.HeaderBytes, 0xFF)
	granules, err := c.NewMappedClusterStream(
		store,
		SectorsPerGranule,
		0,
		c.UnitID(geometry.Granules-1),
		GranuleToBlock,
	)
	if err != nil {
		return nil, err
	}

	gat := make([]byte, geometry.Granules)
	for i := range gat {
		gat[i] = GranuleFree
	}

	return &Driver{
		layout:   layout,
		geometry: geometry,
		store:    store,
		alloc:    c.NewAllocator(geometry.Granules),
		granules: granules,
		gat:      gat,
	}, nil
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "rsdos",
		ByteOrder: binary.BigEndian,
		Fill:      0xFF,
		Names:     c.AlnumRules(8, "FILE"),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

func (drv *Driver) Geometry() Geometry {
	return drv.geometry
}

// FreeGranules returns the number of granules not yet given to a file.
func (drv *Driver) FreeGranules() uint {
	return drv.alloc.FreeCount()
}

// Regions covers the whole directory track. Only the GAT and the directory
// sectors are used; the rest of the track is left blank.
func (drv *Driver) Regions() []disks.Region {
	trackStart := uint(DirectoryTrack * SectorsPerTrack)
	directoryEnd := FirstDirectorySector + DirectorySectors
	return []disks.Region{
		{Kind: disks.RegionReserved, FirstBlock: trackStart, Blocks: GATSector},
		{Kind: disks.RegionAllocationTable, FirstBlock: uint(drv.geometry.GATBlock), Blocks: 1},
		{Kind: disks.RegionDirectory, FirstBlock: uint(drv.geometry.DirectoryStart), Blocks: DirectorySectors},
		{
			Kind:       disks.RegionReserved,
			FirstBlock: trackStart + uint(directoryEnd),
			Blocks:     uint(SectorsPerTrack - directoryEnd),
		},
	}
}

// Format has nothing to write beyond the GAT: a blank directory sector is all
// 0xFF, which is what the fill already gives. Disk BASIC has no volume name.
func (drv *Driver) Format(volumeName string, created time.Time) error {
	return nil
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	if drv.fileCount >= MaxFiles {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("directory holds %d files", MaxFiles))
	}

	name := c.SanitizeShortName(file.Record.Name, c.AlnumRules(8, "FILE"), c.AlnumRules(3, ""))
	file.Name = name.String()
	file.Units = uint(c.ChunkCount(len(file.Content), BytesPerGranule, 1))
	return nil
}

// Allocate takes granules in ascending order, linking each one to the next in
// the GAT. The last entry records how many of its sectors hold data.
func (drv *Driver) Allocate(file *c.PendingFile) error {
	chain, err := drv.alloc.Allocate(file.Units, func(prev, next c.UnitID) error {
		drv.gat[prev] = byte(next)
		return nil
	})
	if err != nil {
		return err
	}

	tail := len(file.Content) - (len(chain)-1)*BytesPerGranule
	drv.gat[chain[len(chain)-1]] = LastGranule | byte(c.ChunkCount(tail, SectorSize, 1))
	file.Chain = chain
	return nil
}

func (drv *Driver) WriteData(file *c.PendingFile) error {
	if err := drv.granules.WriteChain(file.Chain, file.Content, 0xFF); err != nil {
		return err
	}

	lastBytes := len(file.Content) % SectorSize
	if lastBytes == 0 && len(file.Content) > 0 {
		lastBytes = SectorSize
	}
	file.Entry.LastBlockBytes = lastBytes
	return nil
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	fileType, ascii := TypeFor(file.Record.Type)
	base, extension := c.SplitExtension(file.Name)
	dirent := RawDirent{
		Type:            fileType,
		ASCII:           ascii,
		FirstGranule:    uint8(file.Chain[0]),
		LastSectorBytes: uint16(file.Entry.LastBlockBytes),
	}
	copy(dirent.Name[:], c.PadName(base, 8, ' '))
	copy(dirent.Extension[:], c.PadName(extension, 3, ' '))

	block := drv.geometry.DirectoryStart + c.BlockID(drv.fileCount/DirentsPerSector)
	offset := (drv.fileCount % DirentsPerSector) * DirentSize
	err := drv.store.Update(block, func(data []byte) error {
		copy(data[offset:], dirent.Bytes())
		return nil
	})
	if err != nil {
		return err
	}

	drv.fileCount++
	file.Entry.Name = file.Name
	file.Entry.TypeCode = uint16(fileType)
	file.Entry.Start = uint32(file.Chain[0])
	return nil
}

// UpdateSummary rewrites the GAT. Bytes past the last granule are zero, as
// DSKINI leaves them.
func (drv *Driver) UpdateSummary() error {
	sector := make([]byte, SectorSize)
	copy(sector, drv.gat)
	return drv.store.Write(drv.geometry.GATBlock, sector)
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	gat := make([]byte, len(drv.gat))
	copy(gat, drv.gat)
	fileCount := drv.fileCount
	return func() {
		drv.alloc.Restore(state)
		drv.gat = gat
		drv.fileCount = fileCount
	}
}

func (drv *Driver) Finalize() error {
	return nil
}
