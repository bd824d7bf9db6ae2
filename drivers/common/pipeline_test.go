package common_test

import (
	"encoding/binary"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
	rdtesting "github.com/dargueta/retrodisk/testing"
)

// toyFS is a minimal chained file system: 64-byte blocks, block 0 holds four
// 16-byte directory entries, block 1 holds the free count, and every data
// block starts with a one-byte link to the next block (0 = end of chain) and a
// one-byte count of bytes used.
type toyFS struct {
	store      *c.BlockStore
	alloc      *c.Allocator
	fileCount  int
	failWrites bool
}

const toyBlockSize = 64

func newToyFS() *toyFS {
	alloc := c.NewAllocator(32)
	_ = alloc.Reserve(0, 2)
	return &toyFS{
		store: c.NewBlockStore(toyBlockSize, 32, 0, 0),
		alloc: alloc,
	}
}

func (fs *toyFS) Rules() c.Rules {
	return c.Rules{
		Name:      "toy",
		ByteOrder: binary.LittleEndian,
		Overhead:  2,
		Names:     c.AlnumRules(8, "FILE"),
		Checksum: func(block c.BlockID, data []byte) {
			sum := byte(0)
			for _, b := range data[:toyBlockSize-1] {
				sum += b
			}
			data[toyBlockSize-1] = sum
		},
	}
}

func (fs *toyFS) Store() *c.BlockStore { return fs.store }

func (fs *toyFS) Regions() []disks.Region {
	return []disks.Region{{Kind: disks.RegionDirectory, FirstBlock: 0, Blocks: 2}}
}

func (fs *toyFS) Format(volumeName string, created time.Time) error {
	return fs.store.Update(1, func(block []byte) error {
		copy(block[8:], volumeName)
		return nil
	})
}

func (fs *toyFS) usable() int { return toyBlockSize - 2 - 1 }

func (fs *toyFS) Plan(file *c.PendingFile) error {
	if fs.fileCount >= 4 {
		return retrodisk.ErrDirectoryFull
	}
	file.Name = fs.Rules().Names.Sanitize(file.Record.Name)
	file.Units = uint(c.ChunkCount(len(file.Content), fs.usable(), 1))
	return nil
}

func (fs *toyFS) Allocate(file *c.PendingFile) error {
	chain, err := fs.alloc.Allocate(file.Units, func(prev, next c.UnitID) error {
		return fs.store.Update(c.BlockID(prev), func(block []byte) error {
			block[0] = byte(next)
			return nil
		})
	})
	file.Chain = chain
	return err
}

func (fs *toyFS) WriteData(file *c.PendingFile) error {
	if fs.failWrites {
		return stderrors.New("injected failure")
	}
	for i, unit := range file.Chain {
		start := i * fs.usable()
		end := start + fs.usable()
		if end > len(file.Content) {
			end = len(file.Content)
		}
		last := i == len(file.Chain)-1
		err := fs.store.Update(c.BlockID(unit), func(block []byte) error {
			if last {
				block[0] = 0
			}
			block[1] = byte(end - start)
			copy(block[2:], file.Content[start:end])
			return nil
		})
		if err != nil {
			return err
		}
	}
	file.Entry.LastBlockBytes = len(file.Content) - (len(file.Chain)-1)*fs.usable()
	return nil
}

func (fs *toyFS) AddEntry(file *c.PendingFile) error {
	index := fs.fileCount
	err := fs.store.Update(0, func(block []byte) error {
		entry := block[index*16 : index*16+16]
		copy(entry, c.PadName(file.Name, 8, ' '))
		entry[8] = byte(file.Chain[0])
		binary.LittleEndian.PutUint16(entry[9:], uint16(len(file.Content)))
		return nil
	})
	if err != nil {
		return err
	}
	fs.fileCount++
	file.Entry.Name = file.Name
	file.Entry.Start = uint32(file.Chain[0])
	return nil
}

func (fs *toyFS) UpdateSummary() error {
	return fs.store.Update(1, func(block []byte) error {
		block[0] = byte(fs.alloc.FreeCount())
		block[1] = byte(fs.fileCount)
		return nil
	})
}

func (fs *toyFS) Checkpoint() func() {
	state := fs.alloc.Snapshot()
	fileCount := fs.fileCount
	return func() {
		fs.alloc.Restore(state)
		fs.fileCount = fileCount
	}
}

func (fs *toyFS) Finalize() error { return nil }

// readToyFile walks the chain starting at `start` and reassembles the content.
func readToyFile(image []byte, start int) []byte {
	var content []byte
	for block := start; ; {
		data := image[block*toyBlockSize : (block+1)*toyBlockSize]
		content = append(content, data[2:2+int(data[1])]...)
		if data[0] == 0 {
			return content
		}
		block = int(data[0])
	}
}

func newToyVolume(t *testing.T) (*c.Volume, *toyFS) {
	fs := newToyFS()
	volume, err := c.NewVolume(fs, "TOY", time.Date(1985, 7, 23, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return volume, fs
}

func TestVolume__PlaceFile__RoundTrip(t *testing.T) {
	volume, _ := newToyVolume(t)
	content := rdtesting.PatternContent(200, 9)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "hello.bin", Content: content})
	require.NoError(t, err)
	assert.Equal(t, "HELLOBIN", entry.Name)
	assert.Equal(t, "hello.bin", entry.SourceName)
	assert.Equal(t, 200, entry.Size)
	assert.Equal(t, []uint32{2, 3, 4, 5}, entry.Units)
	assert.Equal(t, 200-3*61, entry.LastBlockBytes)
	assert.Equal(t, 1985, entry.Created.Year())

	image, err := volume.Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, content, readToyFile(image, int(entry.Start)))
	assert.EqualValues(t, 32-2-4, image[toyBlockSize])
	assert.EqualValues(t, 1, image[toyBlockSize+1])
}

func TestVolume__PlaceFile__ChecksumAppliedToTouchedBlocks(t *testing.T) {
	volume, _ := newToyVolume(t)
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "A", Content: []byte("abc")})
	require.NoError(t, err)

	image, err := volume.Image()
	require.NoError(t, err)
	for _, block := range []int{0, 1, 2} {
		data := image[block*toyBlockSize : (block+1)*toyBlockSize]
		sum := byte(0)
		for _, b := range data[:toyBlockSize-1] {
			sum += b
		}
		assert.Equal(t, sum, data[toyBlockSize-1], "block %d", block)
	}
	// Never written, so never checksummed.
	assert.Zero(t, image[3*toyBlockSize+toyBlockSize-1])
}

func TestVolume__PlaceFile__DirectoryFull(t *testing.T) {
	volume, _ := newToyVolume(t)
	for i := 0; i < 4; i++ {
		_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "F", Content: []byte{byte(i)}})
		require.NoError(t, err)
	}

	before, err := volume.FileSystem().Store().Image()
	require.NoError(t, err)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "G", Content: []byte{1}})
	assert.ErrorIs(t, err, retrodisk.ErrDirectoryFull)
	assert.True(t, retrodisk.IsPerFile(err))

	after, err := volume.FileSystem().Store().Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, before, after)
	assert.Len(t, volume.Entries(), 4)
}

func TestVolume__PlaceFile__DiskFullLeavesStateUnchanged(t *testing.T) {
	volume, fs := newToyVolume(t)
	before, err := fs.Store().Image()
	require.NoError(t, err)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "BIG", Content: make([]byte, 61*31)})
	assert.ErrorIs(t, err, retrodisk.ErrDiskFull)

	after, err := fs.Store().Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, before, after)
	assert.EqualValues(t, 30, fs.alloc.FreeCount())

	// The space is still usable afterwards.
	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "FITS", Content: make([]byte, 61*30)})
	require.NoError(t, err)
	assert.Len(t, entry.Units, 30)
}

func TestVolume__PlaceFile__LateFailureRollsBackLinks(t *testing.T) {
	volume, fs := newToyVolume(t)
	before, err := fs.Store().Image()
	require.NoError(t, err)

	fs.failWrites = true
	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "X", Content: make([]byte, 500)})
	require.Error(t, err)

	after, err := fs.Store().Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, before, after, "links written during allocation must be undone")
	assert.Zero(t, fs.fileCount)
	assert.EqualValues(t, 0, fs.alloc.Cursor())
}

func TestVolume__PlaceFile__LoaderFailure(t *testing.T) {
	volume, _ := newToyVolume(t)
	record := &retrodisk.FileRecord{
		Name: "MISSING",
		Loader: func() ([]byte, error) {
			return nil, stderrors.New("no such file")
		},
	}

	_, err := volume.PlaceFile(record)
	assert.ErrorIs(t, err, retrodisk.ErrReadSourceFailed)
	assert.True(t, retrodisk.IsPerFile(err))
	assert.Empty(t, volume.Entries())
}
