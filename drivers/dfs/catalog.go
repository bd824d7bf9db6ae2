// Package dfs builds Acorn DFS disks for the BBC Micro, both single sided
// (.ssd) and double sided with interleaved tracks (.dsd).
package dfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/retrodisk"
)

const (
	SectorSize      = 256
	SectorsPerTrack = 10
	CatalogSectors  = 2
	MaxFiles        = 31
	EntrySize       = 8
	TitleLength     = 12
	NameLength      = 7

	// DefaultAddress is &FFFF0E00 cut down to the 18 bits a catalog holds.
	DefaultAddress = 0x30E00
	MaxAddress     = 0x3FFFF
	// MaxSideSectors is the largest count the 10-bit catalog field holds.
	MaxSideSectors = 0x3FF

	DefaultDirectory = '$'
	FlagLocked       = 0x80
)

// CatalogEntry is one file as described by both catalog sectors.
type CatalogEntry struct {
	Directory   byte
	Name        string
	Locked      bool
	Load        uint32
	Exec        uint32
	Length      uint32
	StartSector uint
}

// DisplayName gives the name in the usual "D.NAME" form.
func (e *CatalogEntry) DisplayName() string {
	return string(e.Directory) + "." + e.Name
}

// RawAttributes is the second-sector half of a catalog entry. The top two bits
// of each address and of the start sector are packed into HighBits.
type RawAttributes struct {
	LoadLow   uint16
	ExecLow   uint16
	LengthLow uint16
	HighBits  uint8
	StartLow  uint8
}

func (e *CatalogEntry) attributes() RawAttributes {
	return RawAttributes{
		LoadLow:   uint16(e.Load),
		ExecLow:   uint16(e.Exec),
		LengthLow: uint16(e.Length),
		HighBits: uint8((e.Exec>>16)&3)<<6 |
			uint8((e.Length>>16)&3)<<4 |
			uint8((e.Load>>16)&3)<<2 |
			uint8((e.StartSector>>8)&3),
		StartLow: uint8(e.StartSector),
	}
}

func (attrs RawAttributes) apply(e *CatalogEntry) {
	e.Load = uint32(attrs.LoadLow) | uint32((attrs.HighBits>>2)&3)<<16
	e.Exec = uint32(attrs.ExecLow) | uint32((attrs.HighBits>>6)&3)<<16
	e.Length = uint32(attrs.LengthLow) | uint32((attrs.HighBits>>4)&3)<<16
	e.StartSector = uint(attrs.StartLow) | uint(attrs.HighBits&3)<<8
}

// Catalog is the content of the two catalog sectors at the start of a side.
// Entries are kept in descending order of start sector.
type Catalog struct {
	Title       string
	Cycle       uint8
	BootOption  uint8
	SideSectors uint
	Entries     []CatalogEntry
}

// Insert adds an entry ahead of every entry that starts lower on the disk.
func (cat *Catalog) Insert(entry CatalogEntry) {
	index := len(cat.Entries)
	for i := range cat.Entries {
		if cat.Entries[i].StartSector < entry.StartSector {
			index = i
			break
		}
	}
	cat.Entries = append(cat.Entries, CatalogEntry{})
	copy(cat.Entries[index+1:], cat.Entries[index:])
	cat.Entries[index] = entry
}

// BumpCycle advances the BCD write counter, wrapping from 99 to 0.
func (cat *Catalog) BumpCycle() {
	value := int(cat.Cycle>>4)*10 + int(cat.Cycle&0x0F) + 1
	value %= 100
	cat.Cycle = uint8(value/10)<<4 | uint8(value%10)
}

func (cat *Catalog) clone() Catalog {
	copied := *cat
	copied.Entries = make([]CatalogEntry, len(cat.Entries))
	copy(copied.Entries, cat.Entries)
	return copied
}

// Encode renders both catalog sectors.
func (cat *Catalog) Encode() ([]byte, []byte, error) {
	if len(cat.Entries) > MaxFiles {
		return nil, nil, retrodisk.ErrDirectoryFull.WithMessage(
			fmt.Sprintf("catalog holds %d files, got %d", MaxFiles, len(cat.Entries)))
	}

	names := make([]byte, SectorSize)
	info := make([]byte, SectorSize)

	title := padField(cat.Title, TitleLength)
	copy(names[0:8], title[:8])
	copy(info[0:4], title[8:])
	info[4] = cat.Cycle
	info[5] = uint8(len(cat.Entries) * EntrySize)
	info[6] = (cat.BootOption&3)<<4 | uint8((cat.SideSectors>>8)&3)
	info[7] = uint8(cat.SideSectors)

	for i := range cat.Entries {
		entry := &cat.Entries[i]
		offset := EntrySize * (i + 1)

		copy(names[offset:], padField(entry.Name, NameLength))
		names[offset+NameLength] = entry.Directory
		if entry.Locked {
			names[offset+NameLength] |= FlagLocked
		}

		attrs := entry.attributes()
		writer := bytewriter.New(info[offset : offset+EntrySize])
		if err := binary.Write(writer, binary.LittleEndian, &attrs); err != nil {
			return nil, nil, err
		}
	}
	return names, info, nil
}

// ParseCatalog decodes the two catalog sectors of one side.
func ParseCatalog(names, info []byte) (Catalog, error) {
	if len(names) < SectorSize || len(info) < SectorSize {
		return Catalog{}, retrodisk.ErrInvalidArgument.WithMessage(
			"catalog sectors must be 256 bytes each")
	}

	count := int(info[5]) / EntrySize
	if count > MaxFiles || info[5]%EntrySize != 0 {
		return Catalog{}, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad catalog file count byte 0x%02x", info[5]))
	}

	title := string(names[0:8]) + string(info[0:4])
	cat := Catalog{
		Title:       strings.TrimRight(title, " \x00"),
		Cycle:       info[4],
		BootOption:  (info[6] >> 4) & 3,
		SideSectors: uint(info[6]&3)<<8 | uint(info[7]),
		Entries:     make([]CatalogEntry, count),
	}

	for i := range cat.Entries {
		offset := EntrySize * (i + 1)
		entry := &cat.Entries[i]
		entry.Name = strings.TrimRight(string(names[offset:offset+NameLength]), " ")
		entry.Directory = names[offset+NameLength] &^ FlagLocked
		entry.Locked = names[offset+NameLength]&FlagLocked != 0

		var attrs RawAttributes
		err := binary.Read(bytes.NewReader(info[offset:offset+EntrySize]), binary.LittleEndian, &attrs)
		if err != nil {
			return Catalog{}, err
		}
		attrs.apply(entry)
	}
	return cat, nil
}

func padField(value string, width int) []byte {
	field := bytes.Repeat([]byte{' '}, width)
	copy(field, value)
	return field
}

// SplitName pulls the directory character off a "D.NAME" style name and drops
// any extension from the rest. Names without a directory go in "$".
func SplitName(name string) (byte, string) {
	name = strings.ToUpper(name)
	directory := byte(DefaultDirectory)
	if len(name) > 2 && name[1] == '.' && isDirectoryChar(name[0]) {
		directory = name[0]
		name = name[2:]
	}
	if index := strings.IndexByte(name, '.'); index >= 0 {
		name = name[:index]
	}
	return directory, name
}

func isDirectoryChar(b byte) bool {
	return b == '$' || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
