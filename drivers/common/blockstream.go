package common

import (
	"fmt"
	"io"
	"sort"

	"github.com/boljen/go-bitmap"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/retrodisk"
)

// BlockStore is a fixed-size image buffer that can only be read from or written
// to in whole blocks. The buffer may be preceded by a container header that
// isn't part of the addressable area.
//
// Writes made between [BlockStore.Begin] and [BlockStore.Commit] are journaled
// so that a failed file placement can be undone with [BlockStore.Rollback].
//
// The exposed fields are for informational purposes only and should never be
// changed.
type BlockStore struct {
	// BytesPerBlock gives the size of a block in bytes. All reads and writes
	// must be done in integer multiples of this size.
	BytesPerBlock uint
	// TotalBlocks is the total number of blocks in this store.
	TotalBlocks uint
	// StartOffset is the size of the container header, i.e. the offset of
	// block 0 from the beginning of the image.
	StartOffset int64
	stream      io.ReadWriteSeeker

	inTransaction bool
	touched       bitmap.Bitmap
	preImages     map[BlockID][]byte
}

// NewBlockStore creates an image of `totalBlocks` blocks, each filled with
// `fill`, preceded by `headerBytes` zero bytes.
func NewBlockStore(bytesPerBlock, totalBlocks, headerBytes uint, fill byte) *BlockStore {
	buffer := make([]byte, int(headerBytes)+int(bytesPerBlock*totalBlocks))
	if fill != 0 {
		for i := int(headerBytes); i < len(buffer); i++ {
			buffer[i] = fill
		}
	}

	return &BlockStore{
		BytesPerBlock: bytesPerBlock,
		TotalBlocks:   totalBlocks,
		StartOffset:   int64(headerBytes),
		stream:        bytesextra.NewReadWriteSeeker(buffer),
	}
}

// BlockIDToFileOffset converts a block ID into a byte offset into the image.
func (store *BlockStore) BlockIDToFileOffset(blockID BlockID) (int64, error) {
	if uint(blockID) >= store.TotalBlocks {
		return -1, retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block ID %d: not in range [0, %d)",
				blockID,
				store.TotalBlocks))
	}
	return store.StartOffset + (int64(blockID) * int64(store.BytesPerBlock)), nil
}

// CheckIOBounds checks to see if `dataLength` bytes can be read from or written
// to the store, starting at blockID. If the bounds check fails, it returns an
// error indicating exactly what went wrong.
func (store *BlockStore) CheckIOBounds(blockID BlockID, dataLength uint) error {
	if uint(blockID) >= store.TotalBlocks {
		return retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block ID %d: not in range [0, %d)",
				blockID,
				store.TotalBlocks))
	}

	if dataLength == 0 || dataLength%store.BytesPerBlock != 0 {
		return retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf(
				"data must be a multiple of the block size (%d B), got %d (remainder %d)",
				store.BytesPerBlock,
				dataLength,
				dataLength%store.BytesPerBlock))
	}

	dataSizeInBlocks := dataLength / store.BytesPerBlock
	if uint(blockID)+dataSizeInBlocks > store.TotalBlocks {
		return retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"block %d plus %d blocks of data extends past end of image",
				blockID,
				dataSizeInBlocks))
	}

	return nil
}

func (store *BlockStore) seekTo(offset int64) error {
	_, err := store.stream.Seek(offset, io.SeekStart)
	return err
}

// ReadRange reads `count` whole blocks starting from `blockID`. The returned
// slice is a copy.
func (store *BlockStore) ReadRange(blockID BlockID, count uint) ([]byte, error) {
	err := store.CheckIOBounds(blockID, count*store.BytesPerBlock)
	if err != nil {
		return nil, err
	}

	offset, _ := store.BlockIDToFileOffset(blockID)
	if err = store.seekTo(offset); err != nil {
		return nil, err
	}

	buffer := make([]byte, store.BytesPerBlock*count)
	_, err = io.ReadFull(store.stream, buffer)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// Read reads a single block.
func (store *BlockStore) Read(blockID BlockID) ([]byte, error) {
	return store.ReadRange(blockID, 1)
}

// Write writes data to the store. `data` must be a nonzero multiple of the
// block size or [retrodisk.ErrBlockSizeMismatch] is returned.
func (store *BlockStore) Write(blockID BlockID, data []byte) error {
	err := store.CheckIOBounds(blockID, uint(len(data)))
	if err != nil {
		return err
	}

	if store.inTransaction {
		count := uint(len(data)) / store.BytesPerBlock
		for i := uint(0); i < count; i++ {
			if err = store.journal(blockID + BlockID(i)); err != nil {
				return err
			}
		}
	}

	offset, _ := store.BlockIDToFileOffset(blockID)
	if err = store.seekTo(offset); err != nil {
		return err
	}
	_, err = store.stream.Write(data)
	return err
}

// Update reads one block, passes it to `modify`, and writes it back if
// `modify` succeeds.
func (store *BlockStore) Update(blockID BlockID, modify func(block []byte) error) error {
	block, err := store.Read(blockID)
	if err != nil {
		return err
	}
	if err = modify(block); err != nil {
		return err
	}
	return store.Write(blockID, block)
}

// Header returns a copy of the container header.
func (store *BlockStore) Header() ([]byte, error) {
	header := make([]byte, store.StartOffset)
	if err := store.seekTo(0); err != nil {
		return nil, err
	}
	_, err := io.ReadFull(store.stream, header)
	return header, err
}

// WriteHeader overwrites the container header. It isn't journaled.
func (store *BlockStore) WriteHeader(header []byte) error {
	if int64(len(header)) != store.StartOffset {
		return retrodisk.ErrBlockSizeMismatch.WithMessage(
			fmt.Sprintf(
				"header must be exactly %d bytes, got %d", store.StartOffset, len(header)))
	}
	if err := store.seekTo(0); err != nil {
		return err
	}
	_, err := store.stream.Write(header)
	return err
}

// Image returns a copy of the entire image, header included.
func (store *BlockStore) Image() ([]byte, error) {
	if err := store.seekTo(0); err != nil {
		return nil, err
	}
	image := make([]byte, store.StartOffset+int64(store.BytesPerBlock*store.TotalBlocks))
	_, err := io.ReadFull(store.stream, image)
	if err != nil {
		return nil, err
	}
	return image, nil
}

////////////////////////////////////////////////////////////////////////////////
// Journal

func (store *BlockStore) journal(blockID BlockID) error {
	if store.touched.Get(int(blockID)) {
		return nil
	}

	offset, _ := store.BlockIDToFileOffset(blockID)
	if err := store.seekTo(offset); err != nil {
		return err
	}
	original := make([]byte, store.BytesPerBlock)
	if _, err := io.ReadFull(store.stream, original); err != nil {
		return err
	}

	store.preImages[blockID] = original
	store.touched.Set(int(blockID), true)
	return nil
}

// Begin starts journaling writes. Nested transactions aren't supported.
func (store *BlockStore) Begin() error {
	if store.inTransaction {
		return retrodisk.ErrInvalidArgument.WithMessage("transaction already in progress")
	}
	store.inTransaction = true
	store.touched = bitmap.New(int(store.TotalBlocks))
	store.preImages = make(map[BlockID][]byte)
	return nil
}

// TouchedBlocks lists the blocks written since [BlockStore.Begin], in
// ascending order.
func (store *BlockStore) TouchedBlocks() []BlockID {
	result := make([]BlockID, 0, len(store.preImages))
	for blockID := range store.preImages {
		result = append(result, blockID)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Commit keeps every write made since [BlockStore.Begin].
func (store *BlockStore) Commit() {
	store.inTransaction = false
	store.touched = nil
	store.preImages = nil
}

// Rollback restores every block written since [BlockStore.Begin] to its
// previous contents.
func (store *BlockStore) Rollback() error {
	if !store.inTransaction {
		return nil
	}
	store.inTransaction = false

	for blockID, original := range store.preImages {
		offset, _ := store.BlockIDToFileOffset(blockID)
		if err := store.seekTo(offset); err != nil {
			return err
		}
		if _, err := store.stream.Write(original); err != nil {
			return err
		}
	}
	store.touched = nil
	store.preImages = nil
	return nil
}
