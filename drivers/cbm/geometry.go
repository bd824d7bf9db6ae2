// Package cbm builds Commodore DOS disk images: 1541 (.d64), 1571 (.d71) and
// 1581 (.d81).
package cbm

import (
	"fmt"

	"github.com/dargueta/retrodisk"
	c "github.com/dargueta/retrodisk/drivers/common"
)

const SectorSize = 256

// BytesPerSector is the payload of one sector after the track/sector link.
const BytesPerSector = SectorSize - 2

const (
	VariantD64 = "d64"
	VariantD71 = "d71"
	VariantD81 = "d81"
)

// The 1541 writes directory sectors with an interleave of 3.
var d64DirectorySectors = []int{1, 4, 7, 10, 13, 16, 2, 5, 8, 11, 14, 17, 3, 6, 9, 12, 15, 18}

// Geometry describes the track layout of one drive type. Tracks are numbered
// from 1, sectors from 0.
type Geometry struct {
	Variant        string
	Tracks         int
	DirectoryTrack int
	// DirectorySectors lists the sectors of the directory track that hold
	// directory entries, in the order they're used.
	DirectorySectors []int
	trackStart       []uint
}

// NewGeometry returns the geometry for "d64", "d71" or "d81".
func NewGeometry(variant string) (Geometry, error) {
	g := Geometry{Variant: variant}
	switch variant {
	case VariantD64:
		g.Tracks = 35
		g.DirectoryTrack = 18
		g.DirectorySectors = d64DirectorySectors
	case VariantD71:
		g.Tracks = 70
		g.DirectoryTrack = 18
		g.DirectorySectors = d64DirectorySectors
	case VariantD81:
		g.Tracks = 80
		g.DirectoryTrack = 40
		for s := 3; s < 40; s++ {
			g.DirectorySectors = append(g.DirectorySectors, s)
		}
	default:
		return Geometry{}, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown Commodore disk variant %q", variant))
	}

	g.trackStart = make([]uint, g.Tracks+2)
	for track := 1; track <= g.Tracks; track++ {
		g.trackStart[track+1] = g.trackStart[track] + uint(g.SectorsPerTrack(track))
	}
	return g, nil
}

// SectorsPerTrack gives the number of sectors on `track`. The 1541 and 1571
// use four speed zones; the 1581 has 40 sectors on every track.
func (g Geometry) SectorsPerTrack(track int) int {
	if g.Variant == VariantD81 {
		return 40
	}
	if track > 35 {
		track -= 35
	}
	switch {
	case track <= 17:
		return 21
	case track <= 24:
		return 19
	case track <= 30:
		return 18
	default:
		return 17
	}
}

// TotalSectors gives the number of sectors on the disk.
func (g Geometry) TotalSectors() uint {
	return g.trackStart[g.Tracks+1]
}

// ToUnit converts a track and sector to a linear sector number.
func (g Geometry) ToUnit(track, sector int) c.UnitID {
	return c.UnitID(g.trackStart[track] + uint(sector))
}

// FromUnit converts a linear sector number back to a track and sector.
func (g Geometry) FromUnit(unit c.UnitID) (track, sector int) {
	for track = 1; track < g.Tracks; track++ {
		if uint(unit) < g.trackStart[track+1] {
			break
		}
	}
	return track, int(uint(unit) - g.trackStart[track])
}

// MaxEntries is the directory capacity.
func (g Geometry) MaxEntries() int {
	return len(g.DirectorySectors) * 8
}
