package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/dargueta/retrodisk"
)

////////////////////////////////////////////////////////////////////////////////
// Table rows

// System describes one target machine.
type System struct {
	Slug string `csv:"slug"`
	Name string `csv:"name"`
	// MaxVolumeName is the longest volume name the machine's native DOS accepts.
	MaxVolumeName int `csv:"max_volume_name"`
	// Charset names the character class volume names are sanitized to. See
	// [CharsetByName].
	Charset string `csv:"charset"`
}

// SizeClass is a nominal capacity a user can ask for, e.g. "140KB".
type SizeClass struct {
	Slug        string `csv:"slug"`
	Bytes       int64  `csv:"bytes"`
	Description string `csv:"description"`
}

// LayoutRow is one (system, format, size) triple from the compatibility table.
type LayoutRow struct {
	System          string `csv:"system"`
	Format          string `csv:"format"`
	Size            string `csv:"size"`
	Driver          string `csv:"driver"`
	Variant         string `csv:"variant"`
	BytesPerBlock   uint   `csv:"bytes_per_block"`
	TotalBlocks     uint   `csv:"total_blocks"`
	Tracks          uint   `csv:"tracks"`
	Heads           uint   `csv:"heads"`
	SectorsPerTrack uint   `csv:"sectors_per_track"`
	HeaderBytes     uint   `csv:"header_bytes"`
	ImageBytes      int64  `csv:"image_bytes"`
}

////////////////////////////////////////////////////////////////////////////////
// Layout

// RegionKind tags what a reserved range of blocks is used for.
type RegionKind int

const (
	RegionBoot RegionKind = iota
	RegionDirectory
	RegionAllocationTable
	RegionReserved
)

func (k RegionKind) String() string {
	switch k {
	case RegionBoot:
		return "boot"
	case RegionDirectory:
		return "directory"
	case RegionAllocationTable:
		return "allocation-table"
	default:
		return "reserved"
	}
}

// Region is a run of blocks that never holds file data.
type Region struct {
	Kind       RegionKind
	FirstBlock uint
	Blocks     uint
}

// Contains reports whether `block` falls inside the region.
func (r Region) Contains(block uint) bool {
	return block >= r.FirstBlock && block < r.FirstBlock+r.Blocks
}

// Layout is the concrete shape of one image. It's immutable once resolved;
// [Layout.WithRegions] returns a copy.
type Layout struct {
	System  string
	Format  string
	Size    string
	Driver  string
	Variant string

	BytesPerBlock uint
	TotalBlocks   uint

	// HeaderBytes is the size of a container header (2MG, ATR) that precedes
	// block 0 in the image file. It's not part of the addressable area.
	HeaderBytes uint

	// CHS geometry. Zero when the format addresses blocks linearly only.
	Tracks          uint
	Heads           uint
	SectorsPerTrack uint

	Regions []Region
}

// DataBytes gives the size of the addressable area, excluding any header.
func (l Layout) DataBytes() int64 {
	return int64(l.BytesPerBlock) * int64(l.TotalBlocks)
}

// WithRegions returns a copy of the layout with `regions` appended.
func (l Layout) WithRegions(regions ...Region) Layout {
	merged := make([]Region, 0, len(l.Regions)+len(regions))
	merged = append(merged, l.Regions...)
	merged = append(merged, regions...)
	l.Regions = merged
	return l
}

// ReservedBlockCount gives the number of distinct blocks covered by regions.
func (l Layout) ReservedBlockCount() uint {
	seen := make(map[uint]struct{})
	for _, region := range l.Regions {
		for b := region.FirstBlock; b < region.FirstBlock+region.Blocks; b++ {
			seen[b] = struct{}{}
		}
	}
	return uint(len(seen))
}

// BlockToCHS converts a linear block number to (track, head, sector) for
// formats with a uniform number of sectors per track. Sectors are 0-based.
func (l Layout) BlockToCHS(block uint) (track, head, sector uint, err error) {
	if l.SectorsPerTrack == 0 || l.Heads == 0 {
		return 0, 0, 0, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("layout %s/%s has no uniform CHS geometry", l.System, l.Format))
	}
	if block >= l.TotalBlocks {
		return 0, 0, 0, retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("invalid block ID %d: not in range [0, %d)", block, l.TotalBlocks))
	}

	sector = block % l.SectorsPerTrack
	cylinder := block / l.SectorsPerTrack
	head = cylinder % l.Heads
	track = cylinder / l.Heads
	return track, head, sector, nil
}

////////////////////////////////////////////////////////////////////////////////
// Tables

//go:embed systems.csv
var systemsRawCSV string

//go:embed sizes.csv
var sizesRawCSV string

//go:embed layouts.csv
var layoutsRawCSV string

var systemsBySlug map[string]System
var sizesBySlug map[string]SizeClass
var layoutRows []LayoutRow
var layoutsByKey map[string]LayoutRow

func layoutKey(system, format, size string) string {
	return system + "/" + format + "/" + size
}

func decodeTable(name, raw string, out interface{}) {
	csvReader := csv.NewReader(strings.NewReader(raw))
	csvReader.Comma = '|'
	csvReader.Comment = '#'

	if err := gocsv.UnmarshalCSV(csvReader, out); err != nil {
		panic(fmt.Errorf("failed to decode %s table: %w", name, err))
	}
}

func init() {
	var systems []System
	decodeTable("systems", systemsRawCSV, &systems)
	systemsBySlug = make(map[string]System, len(systems))
	for i, row := range systems {
		if _, exists := systemsBySlug[row.Slug]; exists {
			panic(fmt.Errorf("duplicate definition for system %q found on row %d", row.Slug, i+1))
		}
		if _, err := CharsetByName(row.Charset); err != nil {
			panic(fmt.Errorf("system %q on row %d: %w", row.Slug, i+1, err))
		}
		systemsBySlug[row.Slug] = row
	}

	var sizes []SizeClass
	decodeTable("sizes", sizesRawCSV, &sizes)
	sizesBySlug = make(map[string]SizeClass, len(sizes))
	for i, row := range sizes {
		if _, exists := sizesBySlug[row.Slug]; exists {
			panic(fmt.Errorf("duplicate definition for size %q found on row %d", row.Slug, i+1))
		}
		sizesBySlug[row.Slug] = row
	}

	decodeTable("layouts", layoutsRawCSV, &layoutRows)
	layoutsByKey = make(map[string]LayoutRow, len(layoutRows))
	for i, row := range layoutRows {
		key := layoutKey(row.System, row.Format, row.Size)
		if _, exists := layoutsByKey[key]; exists {
			panic(fmt.Errorf("duplicate layout %q found on row %d", key, i+1))
		}
		if _, ok := systemsBySlug[row.System]; !ok {
			panic(fmt.Errorf("layout %q on row %d names unknown system", key, i+1))
		}
		if _, ok := sizesBySlug[row.Size]; !ok {
			panic(fmt.Errorf("layout %q on row %d names unknown size class", key, i+1))
		}
		layoutsByKey[key] = row
	}
}

////////////////////////////////////////////////////////////////////////////////
// Lookup

// Resolve maps a (system, format, size) triple to its layout. Triples missing
// from the compatibility table fail with [retrodisk.ErrUnsupportedSizeForFormat].
// The returned layout carries no regions; the filesystem driver adds those.
func Resolve(system, format, size string) (Layout, error) {
	row, ok := layoutsByKey[layoutKey(system, format, size)]
	if !ok {
		return Layout{}, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf("%s does not support %s images of size %s", system, format, size))
	}

	return Layout{
		System:          row.System,
		Format:          row.Format,
		Size:            row.Size,
		Driver:          row.Driver,
		Variant:         row.Variant,
		BytesPerBlock:   row.BytesPerBlock,
		TotalBlocks:     row.TotalBlocks,
		HeaderBytes:     row.HeaderBytes,
		Tracks:          row.Tracks,
		Heads:           row.Heads,
		SectorsPerTrack: row.SectorsPerTrack,
	}, nil
}

// GetSystem returns the table entry for the system with the given slug.
func GetSystem(slug string) (System, error) {
	system, ok := systemsBySlug[slug]
	if !ok {
		return System{}, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no system exists with slug %q", slug))
	}
	return system, nil
}

// GetSizeClass returns the table entry for the size class with the given slug.
func GetSizeClass(slug string) (SizeClass, error) {
	size, ok := sizesBySlug[slug]
	if !ok {
		return SizeClass{}, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no size class exists with slug %q", slug))
	}
	return size, nil
}

// Systems lists every known system sorted by slug.
func Systems() []System {
	result := make([]System, 0, len(systemsBySlug))
	for _, system := range systemsBySlug {
		result = append(result, system)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result
}

// Compatibility returns the whole (system, format, size) table in file order.
func Compatibility() []LayoutRow {
	result := make([]LayoutRow, len(layoutRows))
	copy(result, layoutRows)
	return result
}

// FormatsFor lists the formats `system` supports, without duplicates, in table
// order.
func FormatsFor(system string) []string {
	var formats []string
	seen := make(map[string]bool)
	for _, row := range layoutRows {
		if row.System == system && !seen[row.Format] {
			seen[row.Format] = true
			formats = append(formats, row.Format)
		}
	}
	return formats
}

// SizesFor lists the size classes `system` supports for `format`.
func SizesFor(system, format string) []string {
	var sizes []string
	for _, row := range layoutRows {
		if row.System == system && row.Format == format {
			sizes = append(sizes, row.Size)
		}
	}
	return sizes
}
