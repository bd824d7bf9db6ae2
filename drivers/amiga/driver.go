package amiga

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Driver builds an OFS floppy with every file in the root directory.
// Allocation units are block numbers.
type Driver struct {
	layout     disks.Layout
	store      *c.BlockStore
	alloc      *c.Allocator
	root       c.UnitID
	volumeName string
	created    time.Time
	// hashTable holds the first header block of each hash chain, hashTails the
	// last one.
	hashTable [HashTableSize]uint32
	hashTails [HashTableSize]uint32
	names     *c.UniqueNamer
	placed    []string
}

// New creates a driver for an 880 KB (DD) or 1.76 MB (HD) layout.
func New(layout disks.Layout) (*Driver, error) {
	if layout.BytesPerBlock != BlockSize {
		return nil, retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf("Amiga blocks are %d bytes, not %d", BlockSize, layout.BytesPerBlock))
	}
	if layout.TotalBlocks != 1760 && layout.TotalBlocks != 3520 {
		return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("expected 1760 or 3520 blocks, got %d", layout.TotalBlocks))
	}

	root := c.UnitID(layout.TotalBlocks / 2)
	alloc := c.NewAllocator(layout.TotalBlocks)
	if err := alloc.Reserve(0, 2); err != nil {
		return nil, err
	}
	// Root block and its bitmap block.
	if err := alloc.Reserve(root, 2); err != nil {
		return nil, err
	}

	return &Driver{
		layout: layout,
		store:  c.NewBlockStore(BlockSize, layout.TotalBlocks, layout.HeaderBytes, 0),
		alloc:  alloc,
		root:   root,
		names:  c.NewUniqueNamer(),
	}, nil
}

func nameRules() disks.NameRules {
	charset, err := disks.CharsetByName("amiga")
	if err != nil {
		panic(err)
	}
	return disks.NameRules{Charset: charset, MaxLength: MaxNameLength, Placeholder: "FILE"}
}

func (drv *Driver) Rules() c.Rules {
	return c.Rules{
		Name:      "amiga-ofs",
		ByteOrder: binary.BigEndian,
		Overhead:  BlockSize - DataBytesPerBlock,
		Names:     nameRules(),
		Checksum:  drv.checksum,
	}
}

// checksum seals one block. The boot blocks carry their own checksum, which
// Format computes over both of them at once.
func (drv *Driver) checksum(block c.BlockID, data []byte) {
	switch {
	case block < 2:
		return
	case c.UnitID(block) == drv.bitmapBlock():
		binary.BigEndian.PutUint32(data[0:], BlockChecksum(data, 0))
	default:
		binary.BigEndian.PutUint32(data[offChecksum:], BlockChecksum(data, offChecksum))
	}
}

func (drv *Driver) Store() *c.BlockStore {
	return drv.store
}

// RootBlock returns the block number of the root directory.
func (drv *Driver) RootBlock() c.UnitID {
	return drv.root
}

func (drv *Driver) bitmapBlock() c.UnitID {
	return drv.root + 1
}

// FreeBlocks returns the number of unallocated blocks.
func (drv *Driver) FreeBlocks() uint {
	return drv.alloc.FreeCount()
}

func (drv *Driver) Regions() []disks.Region {
	return []disks.Region{
		{Kind: disks.RegionBoot, FirstBlock: 0, Blocks: 2},
		{Kind: disks.RegionDirectory, FirstBlock: uint(drv.root), Blocks: 1},
		{Kind: disks.RegionAllocationTable, FirstBlock: uint(drv.bitmapBlock()), Blocks: 1},
	}
}

func (drv *Driver) Format(volumeName string, created time.Time) error {
	drv.volumeName = nameRules().Sanitize(volumeName)
	drv.created = created

	boot := make([]byte, 2*BlockSize)
	copy(boot, "DOS\x00")
	binary.BigEndian.PutUint32(boot[8:], uint32(drv.root))
	binary.BigEndian.PutUint32(boot[4:], BootChecksum(boot))

	for i := 0; i < 2; i++ {
		if err := drv.store.Write(c.BlockID(i), boot[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

func (drv *Driver) renderRoot() []byte {
	b := newBlock()
	b.putLong(offType, TypeHeader)
	b.putLong(offHashTableSize, HashTableSize)
	for i, head := range drv.hashTable {
		b.putLong(offTable+4*i, head)
	}
	b.putLong(offBitmapFlag, 0xFFFFFFFF)
	b.putLong(offBitmapPages, uint32(drv.bitmapBlock()))

	stamp := NewDateStamp(drv.created)
	b.putDate(offDays, stamp)
	b.putDate(offVolumeDays, stamp)
	b.putDate(offCreationDays, stamp)
	b.putName(offName, drv.volumeName)
	b.putLong(offSecType, SecTypeRoot)
	return b
}

// renderBitmap builds the bitmap block. Bit n of the map stands for block
// n+2, the boot blocks having no bit. Bits are numbered from the LSB of each
// big-endian longword.
func (drv *Driver) renderBitmap() []byte {
	bits := make([]byte, BlockSize-4)
	drv.alloc.EncodeFreeMap(bits, 2, drv.layout.TotalBlocks-2, c.LSBFirst)

	b := newBlock()
	for i := 0; i < len(bits); i += 4 {
		b.putLong(4+i, binary.LittleEndian.Uint32(bits[i:]))
	}
	return b
}

// resolveName renames `name` to BASE_N.EXT if it's already in use, starting
// with N = 2.
func (drv *Driver) resolveName(name string) (string, error) {
	if !drv.names.Taken(name) {
		return name, nil
	}

	base, extension := c.SplitExtension(name)
	if extension != "" {
		extension = "." + extension
	}
	for n := 2; n <= 99; n++ {
		suffix := fmt.Sprintf("_%d", n)
		room := MaxNameLength - len(suffix) - len(extension)
		if room < 1 {
			room = 1
		}
		trimmed := base
		if len(trimmed) > room {
			trimmed = trimmed[:room]
		}

		candidate := trimmed + suffix + extension
		if len(candidate) > MaxNameLength {
			candidate = candidate[:MaxNameLength]
		}
		if !drv.names.Taken(candidate) {
			return candidate, nil
		}
	}
	return "", retrodisk.ErrNameCollision.WithMessage(
		fmt.Sprintf("no free variant of %q between _2 and _99", name))
}

// fileShape splits a chain into the file header, the data blocks and the
// extension blocks, in that order.
type fileShape struct {
	header     c.UnitID
	data       c.Chain
	extensions c.Chain
}

func dataBlocksFor(size int) int {
	return c.ChunkCount(size, DataBytesPerBlock, 0)
}

func extensionBlocksFor(dataBlocks int) int {
	if dataBlocks <= HashTableSize {
		return 0
	}
	return c.ChunkCount(dataBlocks-HashTableSize, HashTableSize, 0)
}

func shapeOf(chain c.Chain, size int) fileShape {
	dataBlocks := dataBlocksFor(size)
	return fileShape{
		header:     chain[0],
		data:       chain[1 : 1+dataBlocks],
		extensions: chain[1+dataBlocks:],
	}
}

// tableFor gives the data block pointers held by the header (part 0) or the
// `part`th extension block.
func (shape fileShape) tableFor(part int) []uint32 {
	start := part * HashTableSize
	end := start + HashTableSize
	if end > len(shape.data) {
		end = len(shape.data)
	}
	if start > end {
		start = end
	}
	return shape.data[start:end].Uint32s()
}

func (drv *Driver) Plan(file *c.PendingFile) error {
	name, err := drv.resolveName(nameRules().Sanitize(file.Record.Name))
	if err != nil {
		return err
	}
	file.Name = name

	dataBlocks := dataBlocksFor(len(file.Content))
	file.Units = uint(1 + dataBlocks + extensionBlocksFor(dataBlocks))
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

func (drv *Driver) WriteData(file *c.PendingFile) error {
	shape := shapeOf(file.Chain, len(file.Content))
	headerKey := uint32(shape.header)

	for i, unit := range shape.data {
		start := i * DataBytesPerBlock
		end := start + DataBytesPerBlock
		if end > len(file.Content) {
			end = len(file.Content)
		}

		b := newBlock()
		b.putLong(offType, TypeData)
		b.putLong(offHeaderKey, headerKey)
		b.putLong(offHighSeq, uint32(i+1))
		b.putLong(offDataSize, uint32(end-start))
		if i+1 < len(shape.data) {
			b.putLong(offNextData, uint32(shape.data[i+1]))
		}
		copy(b[offTable:], file.Content[start:end])
		if err := drv.store.Write(c.BlockID(unit), b); err != nil {
			return err
		}
		file.Entry.LastBlockBytes = end - start
	}

	header := newBlock()
	table := shape.tableFor(0)
	header.putLong(offType, TypeHeader)
	header.putLong(offHeaderKey, headerKey)
	header.putLong(offHighSeq, uint32(len(table)))
	if len(shape.data) > 0 {
		header.putLong(offFirstData, uint32(shape.data[0]))
	}
	header.putTable(table)
	header.putLong(offByteSize, uint32(len(file.Content)))
	header.putDate(offDays, NewDateStamp(file.Created))
	header.putName(offName, file.Name)
	header.putLong(offParent, uint32(drv.root))
	if len(shape.extensions) > 0 {
		header.putLong(offExtension, uint32(shape.extensions[0]))
	}
	header.putLong(offSecType, SecTypeFile)
	if err := drv.store.Write(c.BlockID(shape.header), header); err != nil {
		return err
	}

	for i, unit := range shape.extensions {
		extension := newBlock()
		table = shape.tableFor(i + 1)
		extension.putLong(offType, TypeList)
		extension.putLong(offHeaderKey, uint32(unit))
		extension.putLong(offHighSeq, uint32(len(table)))
		extension.putTable(table)
		extension.putLong(offParent, headerKey)
		if i+1 < len(shape.extensions) {
			extension.putLong(offExtension, uint32(shape.extensions[i+1]))
		}
		extension.putLong(offSecType, SecTypeFile)
		if err := drv.store.Write(c.BlockID(unit), extension); err != nil {
			return err
		}
	}
	return nil
}

// AddEntry hooks the file header into the root hash table. A header whose
// slot is taken is appended to the end of that slot's chain.
func (drv *Driver) AddEntry(file *c.PendingFile) error {
	headerKey := uint32(file.Chain[0])
	slot := HashName(file.Name)

	if drv.hashTable[slot] == 0 {
		drv.hashTable[slot] = headerKey
	} else {
		err := drv.store.Update(c.BlockID(drv.hashTails[slot]), func(data []byte) error {
			binary.BigEndian.PutUint32(data[offHashChain:], headerKey)
			return nil
		})
		if err != nil {
			return err
		}
	}
	drv.hashTails[slot] = headerKey

	drv.names.Use(file.Name)
	drv.placed = append(drv.placed, file.Name)

	file.Entry.Name = file.Name
	file.Entry.Start = headerKey
	file.Entry.Created = file.Created
	return nil
}

// UpdateSummary rewrites the root block and the bitmap.
func (drv *Driver) UpdateSummary() error {
	if err := drv.store.Write(c.BlockID(drv.root), drv.renderRoot()); err != nil {
		return err
	}
	return drv.store.Write(c.BlockID(drv.bitmapBlock()), drv.renderBitmap())
}

func (drv *Driver) Checkpoint() func() {
	state := drv.alloc.Snapshot()
	hashTable := drv.hashTable
	hashTails := drv.hashTails
	placed := len(drv.placed)
	return func() {
		drv.alloc.Restore(state)
		drv.hashTable = hashTable
		drv.hashTails = hashTails
		for _, name := range drv.placed[placed:] {
			drv.names.Forget(name)
		}
		drv.placed = drv.placed[:placed]
	}
}

func (drv *Driver) Finalize() error {
	return nil
}
