package compression_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	c "github.com/dargueta/retrodisk/utilities/compression"
)

func TestRLEGrouper__Basic(t *testing.T) {
	tests := []struct {
		Name     string
		Data     []byte
		Expected c.ByteRun
	}{
		{"empty", []byte{}, c.InvalidRLERun},
		{"two initial", []byte{0, 0, 1, 0, 0, 0, 0}, c.ByteRun{Byte: 0, RunLength: 2}},
		{"one byte", []byte{6, 1, 5, 20, 31}, c.ByteRun{Byte: 6, RunLength: 1}},
		{"entire run", []byte{9, 9, 9, 9, 9, 9}, c.ByteRun{Byte: 9, RunLength: 6}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			result, _ := c.NewRLEGrouper(bytes.NewReader(test.Data)).GetNextRun()
			assert.Equal(t, test.Expected, result)
		})
	}
}

func TestRLEGrouper__Sequence(t *testing.T) {
	data := []byte{1, 9, 4, 4, 4, 4, 4, 6, 6, 0, 1, 0, 0, 0}
	expected := []c.ByteRun{
		{Byte: 1, RunLength: 1},
		{Byte: 9, RunLength: 1},
		{Byte: 4, RunLength: 5},
		{Byte: 6, RunLength: 2},
		{Byte: 0, RunLength: 1},
		{Byte: 1, RunLength: 1},
		{Byte: 0, RunLength: 3},
	}

	grouper := c.NewRLEGrouper(bytes.NewReader(data))
	for i, expectedRun := range expected {
		result, err := grouper.GetNextRun()
		assert.NoError(t, err, "run %d", i)
		assert.Equal(t, expectedRun, result, "run %d is wrong", i)
	}

	result, err := grouper.GetNextRun()
	assert.Equal(t, c.InvalidRLERun, result)
	assert.ErrorIs(t, err, io.EOF)
}
