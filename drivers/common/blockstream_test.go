package common_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	c "github.com/dargueta/retrodisk/drivers/common"
	rdtesting "github.com/dargueta/retrodisk/testing"
)

func TestBlockStore__New__Fill(t *testing.T) {
	store := c.NewBlockStore(256, 4, 16, 0xFF)

	image, err := store.Image()
	require.NoError(t, err)
	require.Len(t, image, 16+1024)
	assert.Equal(t, make([]byte, 16), image[:16], "header must be zeroed")
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 1024), image[16:])
}

func TestBlockStore__Write__Basic(t *testing.T) {
	store := c.NewBlockStore(128, 16, 0, 0)

	for i := c.BlockID(0); i < 16; i++ {
		data := rdtesting.PatternContent(128, byte(i))
		require.NoError(t, store.Write(i, data))

		readBack, err := store.Read(i)
		require.NoError(t, err)
		rdtesting.AssertSameBytes(t, data, readBack, "block %d", i)
	}

	image, err := store.Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, rdtesting.PatternContent(128, 5), image[5*128:6*128])
}

func TestBlockStore__Write__SizeMismatch(t *testing.T) {
	store := c.NewBlockStore(512, 8, 0, 0)

	err := store.Write(0, make([]byte, 511))
	assert.ErrorIs(t, err, retrodisk.ErrBlockSizeMismatch)

	err = store.Write(0, []byte{})
	assert.ErrorIs(t, err, retrodisk.ErrBlockSizeMismatch)

	// Two whole blocks are fine.
	assert.NoError(t, store.Write(6, make([]byte, 1024)))
}

func TestBlockStore__Bounds(t *testing.T) {
	store := c.NewBlockStore(512, 8, 0, 0)

	_, err := store.Read(8)
	assert.ErrorIs(t, err, retrodisk.ErrArgumentOutOfRange)

	err = store.Write(7, make([]byte, 1024))
	assert.ErrorIs(t, err, retrodisk.ErrArgumentOutOfRange)

	_, err = store.Read(7)
	assert.NoError(t, err)
}

func TestBlockStore__Header(t *testing.T) {
	store := c.NewBlockStore(128, 4, 16, 0)
	header := []byte("0123456789ABCDEF")
	require.NoError(t, store.WriteHeader(header))
	require.NoError(t, store.Write(0, bytes.Repeat([]byte{1}, 128)))

	readHeader, err := store.Header()
	require.NoError(t, err)
	assert.Equal(t, header, readHeader)

	image, err := store.Image()
	require.NoError(t, err)
	assert.Equal(t, header, image[:16])
	assert.EqualValues(t, 1, image[16])

	assert.ErrorIs(t, store.WriteHeader([]byte("short")), retrodisk.ErrBlockSizeMismatch)
}

func TestBlockStore__Rollback(t *testing.T) {
	store := c.NewBlockStore(128, 8, 0, 0)
	original := rdtesting.PatternContent(128, 1)
	require.NoError(t, store.Write(2, original))

	require.NoError(t, store.Begin())
	require.NoError(t, store.Write(2, bytes.Repeat([]byte{0xAA}, 128)))
	require.NoError(t, store.Write(2, bytes.Repeat([]byte{0xBB}, 128)))
	require.NoError(t, store.Write(5, bytes.Repeat([]byte{0xCC}, 256)))
	assert.Equal(t, []c.BlockID{2, 5, 6}, store.TouchedBlocks())
	require.NoError(t, store.Rollback())

	block, err := store.Read(2)
	require.NoError(t, err)
	assert.Equal(t, original, block)

	block, err = store.Read(6)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 128), block)
}

func TestBlockStore__Commit(t *testing.T) {
	store := c.NewBlockStore(128, 8, 0, 0)

	require.NoError(t, store.Begin())
	assert.Error(t, store.Begin(), "nested transactions must fail")
	require.NoError(t, store.Update(3, func(block []byte) error {
		block[0] = 0x42
		return nil
	}))
	store.Commit()

	// Rolling back after a commit is a no-op.
	require.NoError(t, store.Rollback())
	block, err := store.Read(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0x42, block[0])
}
