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

func TestClusterStream__Linear(t *testing.T) {
	store := c.NewBlockStore(512, 20, 0, 0)
	stream, err := c.NewClusterStream(store, 2, 4, 2, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, stream.BytesPerCluster())

	block, err := stream.ClusterIDToBlock(2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, block)

	block, err = stream.ClusterIDToBlock(9)
	require.NoError(t, err)
	assert.EqualValues(t, 18, block)

	_, err = stream.ClusterIDToBlock(1)
	assert.ErrorIs(t, err, retrodisk.ErrArgumentOutOfRange)
	_, err = stream.ClusterIDToBlock(10)
	assert.ErrorIs(t, err, retrodisk.ErrArgumentOutOfRange)
}

func TestClusterStream__PastEndOfStore(t *testing.T) {
	store := c.NewBlockStore(512, 20, 0, 0)
	_, err := c.NewClusterStream(store, 2, 4, 2, 10)
	assert.ErrorIs(t, err, retrodisk.ErrArgumentOutOfRange)
}

func TestClusterStream__WriteChain(t *testing.T) {
	store := c.NewBlockStore(256, 12, 0, 0)
	stream, err := c.NewClusterStream(store, 3, 0, 0, 3)
	require.NoError(t, err)

	content := rdtesting.PatternContent(1000, 3)
	require.NoError(t, stream.WriteChain(c.Chain{3, 1}, content, 0xE5))

	first, err := stream.Read(3)
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, content[:768], first)

	second, err := stream.Read(1)
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, content[768:], second[:232])
	assert.Equal(t, bytes.Repeat([]byte{0xE5}, 768-232), second[232:])

	err = stream.Write(0, make([]byte, 769), 0)
	assert.ErrorIs(t, err, retrodisk.ErrBlockSizeMismatch)
}

func TestClusterStream__Mapped(t *testing.T) {
	store := c.NewBlockStore(256, 36, 0, 0)
	// Two clusters per track of 6 blocks; track 1 is skipped.
	mapper := func(cluster c.UnitID) c.BlockID {
		track := uint(cluster) / 2
		if track >= 1 {
			track++
		}
		return c.BlockID(track*6 + (uint(cluster)%2)*3)
	}

	stream, err := c.NewMappedClusterStream(store, 3, 0, 9, mapper)
	require.NoError(t, err)

	block, err := stream.ClusterIDToBlock(1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, block)

	block, err = stream.ClusterIDToBlock(2)
	require.NoError(t, err)
	assert.EqualValues(t, 12, block)

	block, err = stream.ClusterIDToBlock(9)
	require.NoError(t, err)
	assert.EqualValues(t, 33, block)
}
