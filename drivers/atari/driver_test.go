package atari_test

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	"github.com/dargueta/retrodisk/drivers/atari"
	c "github.com/dargueta/retrodisk/drivers/common"
	rdtesting "github.com/dargueta/retrodisk/testing"
)

var buildTime = time.Date(1985, 3, 3, 0, 0, 0, 0, time.UTC)

func newVolume(t *testing.T, size string) (*c.Volume, *atari.Driver) {
	layout, err := disks.Resolve("atari800", "atr", size)
	require.NoError(t, err)
	driver, err := atari.New(layout)
	require.NoError(t, err)
	volume, err := c.NewVolume(driver, "", buildTime)
	require.NoError(t, err)
	return volume, driver
}

func sectorAt(image []byte, sectorSize, sector int) []byte {
	offset := atari.ATRHeaderSize + (sector-1)*sectorSize
	return image[offset : offset+sectorSize]
}

// readFile follows the sector trailers from `start`, checking the file number
// in each one.
func readFile(t *testing.T, image []byte, sectorSize, start, fileNumber int) ([]byte, int) {
	var content []byte
	count := 0
	for sector := start; sector != 0; count++ {
		require.Less(t, count, 1024, "sector chain has a loop")
		data := sectorAt(image, sectorSize, sector)
		trailer := data[sectorSize-3:]
		require.Equal(t, fileNumber, int(trailer[0]>>2), "sector %d", sector)
		content = append(content, data[:trailer[2]]...)
		sector = int(trailer[0]&0x03)<<8 | int(trailer[1])
	}
	return content, count
}

func TestFormat__EmptyDisks(t *testing.T) {
	tests := []struct {
		size       string
		sectorSize int
		usable     uint
		imageSize  int
	}{
		{"90KB", 128, 707, 92160},
		{"130KB", 128, 1010, 133120},
		{"180KB", 256, 707, 184320},
		{"360KB", 256, 1010, 368640},
	}

	for _, test := range tests {
		test := test
		t.Run(test.size, func(t *testing.T) {
			volume, driver := newVolume(t, test.size)
			image, err := volume.Image()
			require.NoError(t, err)
			require.Len(t, image, atari.ATRHeaderSize+test.imageSize)

			header, err := atari.ParseATRHeader(image)
			require.NoError(t, err)
			assert.EqualValues(t, atari.ATRMagic, header.Magic)
			assert.EqualValues(t, test.sectorSize, header.SectorSize)
			paragraphs := int(header.ParagraphsLow) | int(header.ParagraphsHigh)<<16
			assert.Equal(t, test.imageSize/16, paragraphs)

			assert.Equal(t, test.usable, driver.UsableSectors())
			assert.Equal(t, test.usable, driver.FreeSectors())

			vtoc := sectorAt(image, test.sectorSize, atari.VTOCSector)
			assert.EqualValues(t, 2, vtoc[0])
			assert.EqualValues(t, test.usable, binary.LittleEndian.Uint16(vtoc[1:]))
			// Sectors 0-3 used.
			assert.EqualValues(t, 0x0F, vtoc[10])
			// 360-367 used, 368 used.
			assert.EqualValues(t, 0x00, vtoc[10+45])
			assert.EqualValues(t, 0x7F, vtoc[10+46])
		})
	}
}

func TestFormat__90KVTOC(t *testing.T) {
	volume, _ := newVolume(t, "90KB")
	image, err := volume.Image()
	require.NoError(t, err)

	vtoc := sectorAt(image, 128, atari.VTOCSector)
	assert.EqualValues(t, 707, binary.LittleEndian.Uint16(vtoc[3:]))
	assert.EqualValues(t, 0xFF, vtoc[99])
	assert.Zero(t, vtoc[100])
}

func TestFormat__DOS25SecondVTOC(t *testing.T) {
	volume, _ := newVolume(t, "130KB")
	image, err := volume.Image()
	require.NoError(t, err)

	vtoc := sectorAt(image, 128, atari.VTOCSector)
	assert.EqualValues(t, 707, binary.LittleEndian.Uint16(vtoc[3:]))

	vtoc2 := sectorAt(image, 128, atari.VTOC2Sector)
	// Sectors 48-55 are all free.
	assert.EqualValues(t, 0xFF, vtoc2[0])
	// Sector 720 is never free.
	assert.EqualValues(t, 0x7F, vtoc2[84])
	assert.EqualValues(t, 0xFF, vtoc2[121])
	assert.EqualValues(t, 303, binary.LittleEndian.Uint16(vtoc2[122:]))
}

func TestPlaceFile__RoundTrip(t *testing.T) {
	volume, driver := newVolume(t, "90KB")
	first := rdtesting.PatternContent(300, 1)
	second := rdtesting.PatternContent(10, 2)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "game.obj", Content: first})
	require.NoError(t, err)
	assert.Equal(t, "GAME.OBJ", entry.Name)
	assert.Equal(t, []uint32{4, 5, 6}, entry.Units)
	assert.Equal(t, 50, entry.LastBlockBytes)

	entry, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "readme", Content: second})
	require.NoError(t, err)
	assert.EqualValues(t, 7, entry.Start)
	assert.EqualValues(t, 703, driver.FreeSectors())

	image, err := volume.Image()
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 5, 125}, sectorAt(image, 128, 4)[125:])
	assert.Equal(t, []byte{0, 0, 50}, sectorAt(image, 128, 6)[125:])
	assert.Equal(t, []byte{1 << 2, 0, 10}, sectorAt(image, 128, 7)[125:])

	dir := sectorAt(image, 128, atari.FirstDirectorySector)
	dirent, err := atari.ParseDirent(dir[0:])
	require.NoError(t, err)
	assert.EqualValues(t, atari.FlagInUse, dirent.Flags)
	assert.EqualValues(t, 3, dirent.SectorCount)
	assert.EqualValues(t, 4, dirent.StartSector)
	assert.Equal(t, "GAME    ", string(dirent.Name[:]))
	assert.Equal(t, "GAME.OBJ", dirent.DisplayName())

	dirent, err = atari.ParseDirent(dir[atari.DirentSize:])
	require.NoError(t, err)
	assert.Equal(t, "README", dirent.DisplayName())

	readBack, count := readFile(t, image, 128, 4, 0)
	assert.Equal(t, 3, count)
	rdtesting.AssertSameBytes(t, first, readBack)
	readBack, _ = readFile(t, image, 128, 7, 1)
	rdtesting.AssertSameBytes(t, second, readBack)

	vtoc := sectorAt(image, 128, atari.VTOCSector)
	assert.EqualValues(t, 703, binary.LittleEndian.Uint16(vtoc[3:]))
	// Sectors 0-7 now all used.
	assert.Zero(t, vtoc[10])
}

func TestPlaceFile__EmptyFileUsesOneSector(t *testing.T) {
	volume, _ := newVolume(t, "90KB")
	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "EMPTY"})
	require.NoError(t, err)
	assert.Len(t, entry.Units, 1)

	image, err := volume.Image()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, sectorAt(image, 128, 4)[125:])
}

func TestPlaceFile__SkipsVTOCAndDirectory(t *testing.T) {
	volume, _ := newVolume(t, "90KB")
	content := rdtesting.PatternContent(400*125, 6)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "LONG", Content: content})
	require.NoError(t, err)
	require.Len(t, entry.Units, 400)
	assert.EqualValues(t, 359, entry.Units[355])
	assert.EqualValues(t, 369, entry.Units[356])

	image, err := volume.Image()
	require.NoError(t, err)
	// Next sector 369 = 0x171.
	assert.Equal(t, []byte{0x01, 0x71, 125}, sectorAt(image, 128, 359)[125:])

	readBack, count := readFile(t, image, 128, 4, 0)
	assert.Equal(t, 400, count)
	rdtesting.AssertSameBytes(t, content, readBack)
}

func TestPlaceFile__DoubleDensity(t *testing.T) {
	volume, _ := newVolume(t, "180KB")
	content := rdtesting.PatternContent(1000, 8)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "DD", Content: content})
	require.NoError(t, err)
	// 253 bytes per sector.
	assert.Len(t, entry.Units, 4)
	assert.Equal(t, 241, entry.LastBlockBytes)

	image, err := volume.Image()
	require.NoError(t, err)
	readBack, _ := readFile(t, image, 256, 4, 0)
	rdtesting.AssertSameBytes(t, content, readBack)
}

func TestPlaceFile__DirectoryFull(t *testing.T) {
	volume, _ := newVolume(t, "90KB")
	for i := 0; i < atari.MaxFiles; i++ {
		_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: fmt.Sprintf("F%d", i), Content: []byte{1}})
		require.NoError(t, err)
	}

	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "LAST", Content: []byte{1}})
	assert.ErrorIs(t, err, retrodisk.ErrDirectoryFull)

	image, err := volume.Image()
	require.NoError(t, err)
	last := sectorAt(image, 128, atari.LastDirectorySector)
	dirent, err := atari.ParseDirent(last[7*atari.DirentSize:])
	require.NoError(t, err)
	assert.Equal(t, "F63", dirent.DisplayName())

	// File number 63 in the trailer.
	assert.EqualValues(t, 63<<2, sectorAt(image, 128, int(dirent.StartSector))[125])
}

func TestPlaceFile__DiskFull(t *testing.T) {
	volume, driver := newVolume(t, "90KB")
	before, err := driver.Store().Image()
	require.NoError(t, err)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "BIG", Content: make([]byte, 708*125)})
	assert.ErrorIs(t, err, retrodisk.ErrDiskFull)

	after, err := driver.Store().Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, before, after)
	assert.EqualValues(t, 707, driver.FreeSectors())
}

func TestNew__RejectsMissingHeader(t *testing.T) {
	layout, err := disks.Resolve("atari800", "atr", "90KB")
	require.NoError(t, err)
	layout.HeaderBytes = 0
	_, err = atari.New(layout)
	assert.ErrorIs(t, err, retrodisk.ErrInvalidArgument)
}
