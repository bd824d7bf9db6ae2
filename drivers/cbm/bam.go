package cbm

import (
	c "github.com/dargueta/retrodisk/drivers/common"
)

// Padding byte for names and header fields (shifted space).
const padByte = 0xA0

const (
	dosTypeD64 = 0x41
	dosTypeD81 = 0x44
)

// trackEntry renders the BAM entry of one track: a free count followed by
// `width` bytes of bitmap, bit n set if sector n is free.
func trackEntry(g Geometry, alloc *c.Allocator, track int, width int) []byte {
	spt := uint(g.SectorsPerTrack(track))
	start := g.ToUnit(track, 0)
	entry := make([]byte, 1+width)
	entry[0] = byte(alloc.FreeInRange(start, spt))
	alloc.EncodeFreeMap(entry[1:], start, spt, c.LSBFirst)
	return entry
}

// writeDiskHeader fills in the disk name, ID and DOS type fields that start
// at `offset`.
func writeDiskHeader(sector []byte, offset int, volumeName string, dosType string) {
	copy(sector[offset:offset+16], c.PadName(volumeName, 16, padByte))
	sector[offset+16] = padByte
	sector[offset+17] = padByte
	copy(sector[offset+18:], "00")
	sector[offset+20] = padByte
	copy(sector[offset+21:], dosType)
	sector[offset+23] = padByte
	sector[offset+24] = padByte
}

// renderD64BAM rebuilds the BAM sector at 18/0. On a D71 it also carries the
// free counts of the second side; the bitmaps of that side are in 53/0.
func renderD64BAM(g Geometry, alloc *c.Allocator, volumeName string) []byte {
	sector := make([]byte, SectorSize)
	sector[0] = byte(g.DirectoryTrack)
	sector[1] = byte(g.DirectorySectors[0])
	sector[2] = dosTypeD64
	if g.Variant == VariantD71 {
		sector[3] = 0x80
	}

	for track := 1; track <= 35; track++ {
		copy(sector[4+(track-1)*4:], trackEntry(g, alloc, track, 3))
	}

	writeDiskHeader(sector, 0x90, volumeName, "2A")
	for i := 0xA7; i <= 0xAA; i++ {
		sector[i] = padByte
	}

	if g.Variant == VariantD71 {
		for track := 36; track <= 70; track++ {
			sector[0xDD+track-36] = trackEntry(g, alloc, track, 3)[0]
		}
	}
	return sector
}

// renderD71SecondBAM rebuilds 53/0, which holds only the bitmaps of tracks
// 36-70.
func renderD71SecondBAM(g Geometry, alloc *c.Allocator) []byte {
	sector := make([]byte, SectorSize)
	for track := 36; track <= 70; track++ {
		copy(sector[(track-36)*3:], trackEntry(g, alloc, track, 3)[1:])
	}
	return sector
}

// renderD81Header rebuilds the 1581 header sector at 40/0.
func renderD81Header(volumeName string) []byte {
	sector := make([]byte, SectorSize)
	sector[0] = 40
	sector[1] = 3
	sector[2] = dosTypeD81
	writeDiskHeader(sector, 4, volumeName, "3D")
	return sector
}

// renderD81BAM rebuilds one of the two BAM sectors at 40/1 (tracks 1-40) and
// 40/2 (tracks 41-80).
func renderD81BAM(g Geometry, alloc *c.Allocator, part int) []byte {
	sector := make([]byte, SectorSize)
	firstTrack := 1
	if part == 1 {
		sector[0] = 40
		sector[1] = 2
	} else {
		sector[1] = 0xFF
		firstTrack = 41
	}
	sector[2] = dosTypeD81
	sector[3] = 0xFF ^ dosTypeD81
	copy(sector[4:], "00")
	sector[6] = 0xC0

	for track := firstTrack; track < firstTrack+40; track++ {
		copy(sector[0x10+(track-firstTrack)*6:], trackEntry(g, alloc, track, 5))
	}
	return sector
}
