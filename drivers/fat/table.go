package fat

import (
	"fmt"

	"github.com/dargueta/retrodisk"
)

// Table is an in-memory copy of the file allocation table.
type Table struct {
	Version int
	entries []uint32
}

// NewTable creates a table with `totalClusters` data clusters plus the two
// reserved entries. Entry 0 holds the media byte.
func NewTable(version int, totalClusters uint, media uint8) *Table {
	table := &Table{Version: version, entries: make([]uint32, totalClusters+2)}
	table.entries[0] = table.mask() &^ 0xFF | uint32(media)
	table.entries[1] = table.EndOfChain()
	return table
}

func (t *Table) mask() uint32 {
	if t.Version == 12 {
		return 0xFFF
	}
	return 0xFFFF
}

// EndOfChain returns the end-of-chain marker for this FAT version.
func (t *Table) EndOfChain() uint32 {
	return t.mask()
}

// IsEndOfChain reports whether `value` terminates a chain.
func (t *Table) IsEndOfChain(value uint32) bool {
	return value >= t.mask()&^0x7
}

// Len gives the number of entries, including the two reserved ones.
func (t *Table) Len() int {
	return len(t.entries)
}

// Get returns the value of entry `index`.
func (t *Table) Get(index uint32) uint32 {
	return t.entries[index]
}

// Set stores `value` in entry `index`.
func (t *Table) Set(index, value uint32) error {
	if index < 2 || int(index) >= len(t.entries) {
		return retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("invalid cluster ID %d: not in range [2, %d)", index, len(t.entries)))
	}
	t.entries[index] = value & t.mask()
	return nil
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	entries := make([]uint32, len(t.entries))
	copy(entries, t.entries)
	return &Table{Version: t.Version, entries: entries}
}

// Encode packs the table into `output`, which must be large enough. FAT12
// stores two entries in three bytes.
func (t *Table) Encode(output []byte) {
	for i, value := range t.entries {
		switch t.Version {
		case 12:
			offset := i * 3 / 2
			if i%2 == 0 {
				output[offset] = byte(value)
				output[offset+1] = (output[offset+1] & 0xF0) | byte(value>>8)&0x0F
			} else {
				output[offset] = (output[offset] & 0x0F) | byte(value<<4)
				output[offset+1] = byte(value >> 4)
			}
		case 16:
			output[i*2] = byte(value)
			output[i*2+1] = byte(value >> 8)
		}
	}
}

// DecodeTable is the inverse of [Table.Encode].
func DecodeTable(version int, data []byte, totalEntries int) *Table {
	table := &Table{Version: version, entries: make([]uint32, totalEntries)}
	for i := range table.entries {
		switch version {
		case 12:
			offset := i * 3 / 2
			pair := uint32(data[offset]) | uint32(data[offset+1])<<8
			if i%2 == 0 {
				table.entries[i] = pair & 0xFFF
			} else {
				table.entries[i] = pair >> 4
			}
		case 16:
			table.entries[i] = uint32(data[i*2]) | uint32(data[i*2+1])<<8
		}
	}
	return table
}

// FreeCount counts entries marked free.
func (t *Table) FreeCount() uint {
	count := uint(0)
	for _, value := range t.entries[2:] {
		if value == 0 {
			count++
		}
	}
	return count
}
