package testing

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RandomContent returns `size` random bytes, failing the test if the random
// source can't provide them.
func RandomContent(t *testing.T, size int) []byte {
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoErrorf(t, err, "failed to generate %d random bytes", size)
	return data
}

// PatternContent returns `size` bytes where byte i is (i*7 + seed) mod 251.
// The period is prime, so the pattern never lines up with a block boundary and
// misplaced chunks show up as mismatches.
func PatternContent(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*7 + int(seed)) % 251)
	}
	return data
}

// FirstDifference returns the index of the first byte that differs between
// the two slices, or -1 if they're identical. If one is a prefix of the other,
// the length of the shorter one is returned.
func FirstDifference(expected, actual []byte) int {
	shorter := len(expected)
	if len(actual) < shorter {
		shorter = len(actual)
	}
	for i := 0; i < shorter; i++ {
		if expected[i] != actual[i] {
			return i
		}
	}
	if len(expected) != len(actual) {
		return shorter
	}
	return -1
}

// AssertSameBytes compares two byte slices and reports the first offset where
// they differ instead of dumping both slices.
func AssertSameBytes(t *testing.T, expected, actual []byte, msgAndArgs ...interface{}) bool {
	index := FirstDifference(expected, actual)
	if index < 0 {
		return true
	}

	var expectedByte, actualByte interface{} = "<end>", "<end>"
	if index < len(expected) {
		expectedByte = expected[index]
	}
	if index < len(actual) {
		actualByte = actual[index]
	}
	return assert.Failf(
		t,
		"byte slices differ",
		"first difference at offset %d: expected %v, got %v (lengths %d, %d)",
		append(
			[]interface{}{index, expectedByte, actualByte, len(expected), len(actual)},
			msgAndArgs...)...)
}

// RequireBlockSums fails the test unless every 512-byte block listed in
// `blocks` sums to zero when read as 128 big-endian 32-bit words.
func RequireBlockSums(t *testing.T, image []byte, blocks []int) {
	for _, index := range blocks {
		start := index * 512
		require.LessOrEqualf(t, start+512, len(image), "block %d is past the end of the image", index)

		sum := uint32(0)
		for offset := start; offset < start+512; offset += 4 {
			sum += binary.BigEndian.Uint32(image[offset:])
		}
		require.Zerof(t, sum, "block %d doesn't checksum to 0 (got %#08x)", index, sum)
	}
}
