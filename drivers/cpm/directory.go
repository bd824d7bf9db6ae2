package cpm

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/noxer/bytewriter"

	c "github.com/dargueta/retrodisk/drivers/common"
)

// RawDirent is one directory entry. A file needs one entry for every 16 block
// pointers, each covering EXM+1 logical extents.
type RawDirent struct {
	User       uint8
	Name       [8]byte
	Extension  [3]byte
	ExtentLow  uint8
	LastRecord uint8
	ExtentHigh uint8
	Records    uint8
	Blocks     [PointersPerEntry]uint8
}

func (d *RawDirent) Bytes() []byte {
	output := make([]byte, DirentSize)
	_ = binary.Write(bytewriter.New(output), binary.LittleEndian, d)
	return output
}

func ParseDirent(data []byte) (RawDirent, error) {
	var dirent RawDirent
	err := binary.Read(bytes.NewReader(data[:DirentSize]), binary.LittleEndian, &dirent)
	return dirent, err
}

// DisplayName strips the attribute bits from the name and joins the parts.
func (d *RawDirent) DisplayName() string {
	clean := func(field []byte) string {
		out := make([]byte, len(field))
		for i, b := range field {
			out[i] = b & 0x7F
		}
		return strings.TrimRight(string(out), " ")
	}
	return c.ShortName{Base: clean(d.Name[:]), Extension: clean(d.Extension[:])}.String()
}

// Extent returns the full logical extent number of the entry.
func (d *RawDirent) Extent() uint {
	return uint(d.ExtentHigh)<<5 | uint(d.ExtentLow)
}

// EntriesFor returns the number of directory entries a file of `size` bytes
// occupies. Empty files still need one.
func (p Params) EntriesFor(size int) int {
	return c.ChunkCount(size, p.BytesPerEntry(), 1)
}

// BuildEntries splits a file's block chain over as many directory entries as
// needed. The byte count of the last record is only kept in the final entry.
func (p Params) BuildEntries(name c.ShortName, size int, chain c.Chain) []RawDirent {
	count := p.EntriesFor(size)
	totalRecords := c.ChunkCount(size, RecordSize, 0)
	recordsPerEntry := int(p.ExtentMask+1) * RecordsPerExtent

	entries := make([]RawDirent, count)
	for i := range entries {
		entry := &entries[i]
		copy(entry.Name[:], c.PadName(name.Base, 8, ' '))
		copy(entry.Extension[:], c.PadName(name.Extension, 3, ' '))

		records := totalRecords - i*recordsPerEntry
		if records > recordsPerEntry {
			records = recordsPerEntry
		}

		extent := uint(i) * (p.ExtentMask + 1)
		if records > 0 {
			extent += uint((records - 1) / RecordsPerExtent)
			entry.Records = uint8(records - (records-1)/RecordsPerExtent*RecordsPerExtent)
		}
		entry.ExtentLow = uint8(extent & 0x1F)
		entry.ExtentHigh = uint8(extent >> 5)

		first := i * PointersPerEntry
		for j := 0; j < PointersPerEntry && first+j < len(chain); j++ {
			entry.Blocks[j] = uint8(chain[first+j])
		}
	}
	entries[count-1].LastRecord = uint8(size % RecordSize)
	return entries
}
