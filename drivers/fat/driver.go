package fat

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a FAT12/16 volume with a single root directory.
type Driver struct {
	layout   disks.Layout
	variant  string
	geometry Geometry
	store    *c.BlockStore
	clusters *c.ClusterStream
	alloc    *c.Allocator
	table    *Table
	// nextDirent is the index of the next free root directory slot. Slot 0 is
	// the volume label.
	nextDirent int
}

// New creates a driver using the standard parameters for the layout's variant
// and size class.
func New(layout disks.Layout) (*Driver, error) {
	params, err := PresetFor(layout.Variant, layout.Size)
	if err != nil {
		return nil, err
	}
	return NewWithParams(layout, params)
}

// NewWithParams creates a driver with explicit parameters, for layouts that
// aren't in the preset table.
func NewWithParams(layout disks.Layout, params Params) (*Driver, error) {
	if params.ReservedSectors == 0 {
		params.ReservedSectors = 1
	}
	if params.NumFATs == 0 {
		params.NumFATs = 2
	}

	geometry, err := ComputeGeometry(params, layout.BytesPerBlock, layout.TotalBlocks)
	if err != nil {
		return nil, err
	}

	store := c.NewBlockStore(layout.BytesPerBlock, layout.TotalBlocks, layout.HeaderBytes, 0)
	lastCluster := c.UnitID(geometry.TotalClusters + 1)
	clusters, err := c.NewClusterStream(
		store, uint(params.SectorsPerCluster), c.BlockID(geometry.FirstDataSector), 2, lastCluster)
	if err != nil {
		return nil, err
	}

	alloc := c.NewAllocator(geometry.TotalClusters + 2)
	if err = alloc.Reserve(0, 2); err != nil {
		return nil, err
	}

	return &Driver{
		layout:   layout,
		variant:  layout.Variant,
		geometry: geometry,
		store:    store,
		clusters: clusters,
		alloc:    alloc,
		table:    NewTable(geometry.FATVersion, geometry.TotalClusters, params.Media),
	}, nil
}

// Geometry returns the computed volume geometry.
func (drv *Driver) Geometry() Geometry {
	return drv.geometry
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "fat" + fmt.Sprint(drv.geometry.FATVersion),
		ByteOrder: binary.LittleEndian,
		Names:     c.AlnumRules(8, "FILE"),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

func (drv *Driver) Regions() []disks.Region {
	g := drv.geometry
	return []disks.Region{
		{Kind: disks.RegionBoot, FirstBlock: 0, Blocks: uint(g.ReservedSectors)},
		{Kind: disks.RegionAllocationTable, FirstBlock: g.FirstFATSector, Blocks: uint(g.NumFATs) * g.SectorsPerFAT},
		{Kind: disks.RegionDirectory, FirstBlock: g.FirstRootSector, Blocks: g.RootDirSectors},
	}
}

// Serial numbers are derived from the build time the way DOS does it, so a
// reproducible build gets a reproducible serial.
func volumeSerial(created time.Time) uint32 {
	datePart := uint32(created.Month())<<24 | uint32(created.Day())<<16 | uint32(created.Second())<<8
	timePart := uint32(created.Hour())<<24 | uint32(created.Minute())<<16 | uint32(created.Year())
	return datePart + timePart
}

func (drv *Driver) Format(volumeName string, created time.Time) error {
	bootSector, err := BuildBootSector(
		drv.variant,
		drv.geometry,
		drv.layout.SectorsPerTrack,
		drv.layout.Heads,
		volumeName,
		volumeSerial(created))
	if err != nil {
		return err
	}
	if err = drv.store.Write(0, bootSector); err != nil {
		return err
	}

	label := NewLabelDirent(volumeName, created)
	err = drv.store.Update(c.BlockID(drv.geometry.FirstRootSector), func(block []byte) error {
		copy(block, label.Bytes())
		return nil
	})
	if err != nil {
		return err
	}
	drv.nextDirent = 1
	return nil
}

func (drv *Driver) maxDirents() int {
	return int(drv.geometry.RootEntries)
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	if drv.nextDirent >= drv.maxDirents() {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("root directory holds %d entries", drv.maxDirents()-1))
	}
	if uint64(len(file.Content)) > 0xFFFFFFFF {
		return retrodisk.ErrFileTooLarge
	}

	name := c.SanitizeShortName(file.Record.Name, c.AlnumRules(8, "FILE"), c.AlnumRules(3, ""))
	file.Name = name.String()
	file.Units = uint(c.ChunkCount(len(file.Content), int(drv.clusters.BytesPerCluster()), 0))
	return nil
}

func (drv *Driver) Allocate(file *c.PendingFile) error {
	chain, err := drv.alloc.Allocate(file.Units, func(prev, next c.UnitID) error {
		return drv.table.Set(uint32(prev), uint32(next))
	})
	if err != nil {
		return err
	}
	file.Chain = chain
	return nil
}

func (drv *Driver) WriteData(file *c.PendingFile) error {
	if len(file.Chain) == 0 {
		return nil
	}

	last := file.Chain[len(file.Chain)-1]
	if err := drv.table.Set(uint32(last), drv.table.EndOfChain()); err != nil {
		return err
	}
	if err := drv.clusters.WriteChain(file.Chain, file.Content, 0); err != nil {
		return err
	}

	perCluster := int(drv.clusters.BytesPerCluster())
	file.Entry.LastBlockBytes = len(file.Content) - (len(file.Chain)-1)*perCluster
	return nil
}

func (drv *Driver) direntLocation(index int) (c.BlockID, int) {
	perSector := int(drv.geometry.BytesPerSector) / DirentSize
	return c.BlockID(int(drv.geometry.FirstRootSector) + index/perSector), (index % perSector) * DirentSize
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	start := uint32(0)
	if len(file.Chain) > 0 {
		start = uint32(file.Chain[0])
	}

	base, extension := c.SplitExtension(file.Name)
	dirent := NewRawDirent(base, extension, start, uint32(len(file.Content)), file.Created)

	block, offset := drv.direntLocation(drv.nextDirent)
	err := drv.store.Update(block, func(data []byte) error {
		copy(data[offset:], dirent.Bytes())
		return nil
	})
	if err != nil {
		return err
	}

	drv.nextDirent++
	file.Entry.Name = file.Name
	file.Entry.TypeCode = AttrArchived
	file.Entry.Start = start
	return nil
}

// UpdateSummary writes every copy of the FAT.
func (drv *Driver) UpdateSummary() error {
	g := drv.geometry
	encoded := make([]byte, g.SectorsPerFAT*g.BytesPerSector)
	drv.table.Encode(encoded)

	for i := uint(0); i < uint(g.NumFATs); i++ {
		first := c.BlockID(g.FirstFATSector + i*g.SectorsPerFAT)
		if err := drv.store.Write(first, encoded); err != nil {
			return err
		}
	}
	return nil
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	table := drv.table.Clone()
	nextDirent := drv.nextDirent
	return func() {
		drv.alloc.Restore(state)
		drv.table = table
		drv.nextDirent = nextDirent
	}
}

func (drv *Driver) Finalize() error {
	return nil
}
