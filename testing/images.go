package testing

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/retrodisk/utilities/compression"
)

// LoadImage takes a compressed disk image and returns a stream to access the
// uncompressed data.
//
//   - Writes to the stream do not affect `compressedImageBytes`.
//   - While the stream can be written to, its size is fixed to `expectedSize`.
//     Attempting to write past the end of this buffer will trigger an error.
func LoadImage(t *testing.T, compressedImageBytes []byte, expectedSize int) io.ReadWriteSeeker {
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)
	require.Equal(t, expectedSize, len(imageBytes), "uncompressed image is wrong size")
	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// Block returns a copy of block `index` of `image`, skipping `headerBytes` of
// container header. It fails the test if the block is out of range.
func Block(t *testing.T, image []byte, headerBytes, bytesPerBlock, index int) []byte {
	start := headerBytes + index*bytesPerBlock
	require.LessOrEqualf(
		t,
		start+bytesPerBlock,
		len(image),
		"block %d of size %d is past the end of the image",
		index,
		bytesPerBlock)

	block := make([]byte, bytesPerBlock)
	copy(block, image[start:start+bytesPerBlock])
	return block
}
