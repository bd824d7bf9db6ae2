package prodos

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds a ProDOS volume with files in the volume directory.
type Driver struct {
	layout       disks.Layout
	store        *c.BlockStore
	blocks       *c.ClusterStream
	alloc        *c.Allocator
	bitmapBlocks uint
	fileCount    int
	names        *c.UniqueNamer
	// placed lists the on-disk names in placement order so a checkpoint can
	// release the ones added after it.
	placed []string
}

// New creates a driver for a ProDOS layout. Layouts with a 64-byte header get
// a 2IMG header.
func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != BlockSize {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("ProDOS blocks are %d bytes, not %d", BlockSize, layout.BytesPerBlock))
	}
	if layout.TotalBlocks > 0xFFFF {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("ProDOS volumes hold at most 65535 blocks, not %d", layout.TotalBlocks))
	}
	if layout.HeaderBytes != 0 && layout.HeaderBytes != TwoImgHeaderSize {
		return nil, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unexpected %d-byte header on a ProDOS layout", layout.HeaderBytes))
	}

	bitmapBlocks := bitmapBlocksFor(layout.TotalBlocks)
	reserved := BitmapStartBlock + bitmapBlocks
	if reserved >= layout.TotalBlocks {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("%d blocks is too small for a ProDOS volume", layout.TotalBlocks))
	}

	store := c.NewBlockStore(BlockSize, layout.TotalBlocks, layout.HeaderBytes, 0)
	blocks, err := c.NewClusterStream(store, 1, 0, 0, c.UnitID(layout.TotalBlocks-1))
	if err != nil {
		return nil, err
	}

	alloc := c.NewAllocator(layout.TotalBlocks)
	if err = alloc.Reserve(0, reserved); err != nil {
		return nil, err
	}

	return &Driver{
		layout:       layout,
		store:        store,
		blocks:       blocks,
		alloc:        alloc,
		bitmapBlocks: bitmapBlocks,
		names:        c.NewUniqueNamer(),
	}, nil
}

func nameRules() disks.NameRules {
	charset, err := disks.CharsetByName("prodos")
	if err != nil {
		panic(err)
	}
	return disks.NameRules{Charset: charset, MaxLength: 15, Placeholder: "UNTITLED", LeadingLetter: true}
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "prodos",
		ByteOrder: binary.LittleEndian,
		Names:     nameRules(),
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

func (drv *Driver) Regions() []disks.Region {
	return []disks.Region{
		{Kind: disks.RegionBoot, FirstBlock: 0, Blocks: FirstDirectoryBlock},
		{
			Kind:       disks.RegionDirectory,
			FirstBlock: FirstDirectoryBlock,
			Blocks:     LastDirectoryBlock - FirstDirectoryBlock + 1,
		},
		{Kind: disks.RegionAllocationTable, FirstBlock: BitmapStartBlock, Blocks: drv.bitmapBlocks},
	}
}

// FreeBlocks returns the number of unallocated blocks.
func (drv *Driver) FreeBlocks() uint {
	return drv.alloc.FreeCount()
}

func (drv *Driver) Format(volumeName string, created time.Time) error {
	if drv.layout.HeaderBytes == TwoImgHeaderSize {
		header := NewTwoImgHeader(drv.layout.TotalBlocks)
		if err := drv.store.WriteHeader(header.Bytes()); err != nil {
			return err
		}
	}

	volumeName = nameRules().Sanitize(volumeName)
	header := RawVolumeHeader{
		Creation:        NewDateTime(created),
		Access:          AccessVolumeUnlocked,
		EntryLength:     EntryLength,
		EntriesPerBlock: EntriesPerBlock,
		BitmapPointer:   BitmapStartBlock,
		TotalBlocks:     uint16(drv.layout.TotalBlocks),
	}
	header.StorageTypeNameLength, header.VolumeName = packName(StorageVolumeHeader, volumeName)

	// The directory blocks form a doubly linked list.
	for block := uint(FirstDirectoryBlock); block <= LastDirectoryBlock; block++ {
		data := make([]byte, BlockSize)
		if block > FirstDirectoryBlock {
			binary.LittleEndian.PutUint16(data[0:], uint16(block-1))
		}
		if block < LastDirectoryBlock {
			binary.LittleEndian.PutUint16(data[2:], uint16(block+1))
		}
		if block == FirstDirectoryBlock {
			copy(data[4:], header.Bytes())
		}
		if err := drv.store.Write(c.BlockID(block), data); err != nil {
			return err
		}
	}
	return nil
}

// resolveName renames `name` to BASE.N if it's already in use.
func (drv *Driver) resolveName(name string) (string, error) {
	if !drv.names.Taken(name) {
		return name, nil
	}

	for n := 1; n <= 99; n++ {
		suffix := fmt.Sprintf(".%d", n)
		base := name
		if len(base)+len(suffix) > 15 {
			base = base[:15-len(suffix)]
		}
		candidate := base + suffix
		if !drv.names.Taken(candidate) {
			return candidate, nil
		}
	}
	return "", retrodisk.ErrNameCollision.WithMessage(
		fmt.Sprintf("no free variant of %q between .1 and .99", name))
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	if drv.fileCount >= MaxFiles {
		return retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("volume directory holds %d files", MaxFiles))
	}
	if len(file.Content) > MaxFileSize {
		return retrodisk.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("%d bytes exceeds the ProDOS maximum of %d", len(file.Content), MaxFileSize))
	}

	name, err := drv.resolveName(nameRules().Sanitize(file.Record.Name))
	if err != nil {
		return err
	}
	file.Name = name

	dataBlocks := c.ChunkCount(len(file.Content), BlockSize, 1)
	file.Units = uint(dataBlocks + indexBlocksFor(dataBlocks))
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

// fileShape splits a chain into its key block, index blocks and data blocks.
// Saplings and trees put their key block first; each index block of a tree
// precedes the data blocks it points to.
type fileShape struct {
	storageType int
	key         c.UnitID
	// indexes maps each index block to the data blocks it points to.
	indexes []c.Chain
	indexAt []c.UnitID
	data    c.Chain
}

// dataBlocksIn inverts `d + indexBlocksFor(d)`.
func dataBlocksIn(chainLength int) int {
	count := chainLength - indexBlocksFor(chainLength)
	for count+indexBlocksFor(count) < chainLength {
		count++
	}
	return count
}

func shapeOf(chain c.Chain) fileShape {
	shape := fileShape{storageType: storageTypeFor(dataBlocksIn(len(chain))), key: chain[0]}
	switch shape.storageType {
	case StorageSeedling:
		shape.data = chain
	case StorageSapling:
		shape.data = chain[1:]
		shape.indexAt = []c.UnitID{chain[0]}
		shape.indexes = []c.Chain{chain[1:]}
	default:
		for pos := 1; pos < len(chain); {
			count := len(chain) - pos - 1
			if count > 256 {
				count = 256
			}
			group := chain[pos+1 : pos+1+count]
			shape.indexAt = append(shape.indexAt, chain[pos])
			shape.indexes = append(shape.indexes, group)
			shape.data = append(shape.data, group...)
			pos += 1 + count
		}
	}
	return shape
}

// indexBlock renders a list of block pointers with the low bytes in the first
// half and the high bytes in the second.
func indexBlock(pointers []c.UnitID) []byte {
	block := make([]byte, BlockSize)
	for i, pointer := range pointers {
		block[i] = byte(pointer)
		block[256+i] = byte(pointer >> 8)
	}
	return block
}

func (drv *Driver) WriteData(file *c.PendingFile) error {
	shape := shapeOf(file.Chain)

	if err := drv.blocks.WriteChain(shape.data, file.Content, 0); err != nil {
		return err
	}
	for i, at := range shape.indexAt {
		if err := drv.store.Write(c.BlockID(at), indexBlock(shape.indexes[i])); err != nil {
			return err
		}
	}
	if shape.storageType == StorageTree {
		if err := drv.store.Write(c.BlockID(shape.key), indexBlock(shape.indexAt)); err != nil {
			return err
		}
	}

	file.Entry.LastBlockBytes = len(file.Content) - (len(shape.data)-1)*BlockSize
	return nil
}

func (drv *Driver) AddEntry(file *c.PendingFile) error {
	shape := shapeOf(file.Chain)
	fileType := TypeFor(file.Record.Type, file.Record.LoadAddress)

	entry := RawFileEntry{
		FileType:      fileType.Code,
		KeyPointer:    uint16(shape.key),
		BlocksUsed:    uint16(len(file.Chain)),
		Creation:      NewDateTime(file.Created),
		Access:        AccessUnlocked,
		AuxType:       fileType.Aux,
		LastModified:  NewDateTime(file.Created),
		HeaderPointer: FirstDirectoryBlock,
	}
	entry.StorageTypeNameLength, entry.FileName = packName(shape.storageType, file.Name)
	setEOF(&entry.EOF, len(file.Content))

	block, offset := EntryLocation(drv.fileCount + 1)
	err := drv.store.Update(c.BlockID(block), func(data []byte) error {
		copy(data[offset:], entry.Bytes())
		return nil
	})
	if err != nil {
		return err
	}

	drv.fileCount++
	drv.names.Use(file.Name)
	drv.placed = append(drv.placed, file.Name)

	file.Entry.Name = file.Name
	file.Entry.TypeCode = uint16(fileType.Code)
	file.Entry.Start = uint32(shape.key)
	return nil
}

// UpdateSummary writes the file count and the volume bitmap.
func (drv *Driver) UpdateSummary() error {
	err := drv.store.Update(FirstDirectoryBlock, func(data []byte) error {
		binary.LittleEndian.PutUint16(data[0x25:], uint16(drv.fileCount))
		return nil
	})
	if err != nil {
		return err
	}

	bitmap := make([]byte, drv.bitmapBlocks*BlockSize)
	drv.alloc.EncodeFreeMap(bitmap, 0, drv.layout.TotalBlocks, c.MSBFirst)
	for i := uint(0); i < drv.bitmapBlocks; i++ {
		chunk := bitmap[i*BlockSize : (i+1)*BlockSize]
		if err = drv.store.Write(c.BlockID(BitmapStartBlock+i), chunk); err != nil {
			return err
		}
	}
	return nil
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	fileCount := drv.fileCount
	placed := len(drv.placed)
	return func() {
		drv.alloc.Restore(state)
		drv.fileCount = fileCount
		for _, name := range drv.placed[placed:] {
			drv.names.Forget(name)
		}
		drv.placed = drv.placed[:placed]
	}
}

func (drv *Driver) Finalize() error {
	return nil
}
