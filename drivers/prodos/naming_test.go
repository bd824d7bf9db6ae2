package prodos

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
)

func TestResolveName__GivesUpAfter99(t *testing.T) {
	layout, err := disks.Resolve("appleII", "po", "140KB")
	require.NoError(t, err)
	drv, err := New(layout)
	require.NoError(t, err)

	drv.names.Use("LONGFILENAME123")
	for n := 1; n <= 98; n++ {
		suffix := fmt.Sprintf(".%d", n)
		drv.names.Use("LONGFILENAME123"[:15-len(suffix)] + suffix)
	}

	name, err := drv.resolveName("LONGFILENAME123")
	require.NoError(t, err)
	assert.Equal(t, "LONGFILENAME.99", name)

	drv.names.Use(name)
	_, err = drv.resolveName("LONGFILENAME123")
	assert.ErrorIs(t, err, retrodisk.ErrNameCollision)
}

func TestDataBlocksIn(t *testing.T) {
	for _, dataBlocks := range []int{1, 2, 255, 256, 257, 512, 513, 32768} {
		chainLength := dataBlocks + indexBlocksFor(dataBlocks)
		assert.Equal(t, dataBlocks, dataBlocksIn(chainLength), "%d data blocks", dataBlocks)
	}
}
