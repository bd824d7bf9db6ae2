package trdos_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
	"github.com/dargueta/retrodisk/drivers/trdos"
	rdtesting "github.com/dargueta/retrodisk/testing"
)

var buildTime = time.Date(1990, 5, 5, 0, 0, 0, 0, time.UTC)

func newVolume(t *testing.T) (*c.Volume, *trdos.Driver) {
	layout, err := disks.Resolve("zxSpectrum", "trd", "640KB")
	require.NoError(t, err)
	driver, err := trdos.New(layout)
	require.NoError(t, err)
	volume, err := c.NewVolume(driver, "games", buildTime)
	require.NoError(t, err)
	return volume, driver
}

func diskInfo(t *testing.T, image []byte) trdos.RawDiskInfo {
	offset := trdos.SystemSector * trdos.SectorSize
	info, err := trdos.ParseDiskInfo(image[offset : offset+trdos.SectorSize])
	require.NoError(t, err)
	return info
}

func direntAt(t *testing.T, image []byte, index int) trdos.RawDirent {
	dirent, err := trdos.ParseDirent(image[index*trdos.DirentSize:])
	require.NoError(t, err)
	return dirent
}

func TestFormat__SystemSector(t *testing.T) {
	volume, driver := newVolume(t)
	image, err := volume.Image()
	require.NoError(t, err)
	require.Len(t, image, 655360)

	info := diskInfo(t, image)
	assert.EqualValues(t, 0, info.FirstFreeSector)
	assert.EqualValues(t, 1, info.FirstFreeTrack)
	assert.EqualValues(t, 0x16, info.DiskType)
	assert.EqualValues(t, 0, info.FileCount)
	assert.EqualValues(t, 2544, info.FreeSectors)
	assert.EqualValues(t, 0x10, info.ID)
	assert.Equal(t, "GAMES   ", string(info.Label[:]))
	assert.EqualValues(t, 2544, driver.FreeSectors())

	// Raw offsets, independent of the struct.
	sector := image[trdos.SystemSector*trdos.SectorSize:]
	assert.Equal(t, []byte{0, 1, 0x16, 0, 0xF0, 0x09, 0x10}, sector[0xE1:0xE8])
	assert.Equal(t, "GAMES", string(sector[0xF5:0xFA]))
}

func TestPlaceFile__Types(t *testing.T) {
	tests := []struct {
		name        string
		fileType    retrodisk.FileType
		loadAddress uint32
		size        int
		letter      byte
		start       uint16
	}{
		{"code", retrodisk.FileTypeBinary, 0, 1000, 'C', 32768},
		{"screen", retrodisk.FileTypeGraphics, 0, 6912, 'C', 16384},
		{"loaded", retrodisk.FileTypeBinary, 0x6000, 100, 'C', 0x6000},
		{"basic", retrodisk.FileTypeBasic, 0, 321, 'B', 321},
		{"text", retrodisk.FileTypeText, 0, 50, 'D', 0},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			volume, _ := newVolume(t)
			entry, err := volume.PlaceFile(&retrodisk.FileRecord{
				Name:        test.name + ".bin",
				Type:        test.fileType,
				LoadAddress: test.loadAddress,
				Content:     rdtesting.PatternContent(test.size, 1),
			})
			require.NoError(t, err)
			assert.EqualValues(t, test.letter, entry.TypeCode)

			image, err := volume.Image()
			require.NoError(t, err)
			dirent := direntAt(t, image, 0)
			assert.EqualValues(t, test.letter, dirent.Type)
			assert.Equal(t, test.start, dirent.Start)
			assert.EqualValues(t, test.size, dirent.Length)
		})
	}
}

func TestPlaceFile__Contiguous(t *testing.T) {
	volume, driver := newVolume(t)
	first := rdtesting.PatternContent(1000, 3)
	second := rdtesting.PatternContent(600, 4)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "first.cod", Content: first})
	require.NoError(t, err)
	assert.Equal(t, "FIRST", entry.Name)
	assert.Equal(t, []uint32{16, 17, 18, 19}, entry.Units)
	assert.Equal(t, 232, entry.LastBlockBytes)

	entry, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "second", Content: second})
	require.NoError(t, err)
	assert.EqualValues(t, 20, entry.Start)
	assert.EqualValues(t, 2544-7, driver.FreeSectors())

	image, err := volume.Image()
	require.NoError(t, err)

	dirent := direntAt(t, image, 1)
	assert.Equal(t, "SECOND", dirent.DisplayName())
	assert.EqualValues(t, 3, dirent.Sectors)
	assert.EqualValues(t, 4, dirent.FirstSector)
	assert.EqualValues(t, 1, dirent.FirstTrack)

	rdtesting.AssertSameBytes(t, first, image[16*256:16*256+1000])
	rdtesting.AssertSameBytes(t, second, image[20*256:20*256+600])

	info := diskInfo(t, image)
	assert.EqualValues(t, 2, info.FileCount)
	assert.EqualValues(t, 7, info.FirstFreeSector)
	assert.EqualValues(t, 1, info.FirstFreeTrack)
	assert.EqualValues(t, 2537, info.FreeSectors)
}

func TestPlaceFile__EmptyFileTakesNoSectors(t *testing.T) {
	volume, _ := newVolume(t)
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "A", Content: []byte{1}})
	require.NoError(t, err)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "EMPTY"})
	require.NoError(t, err)
	assert.Empty(t, entry.Units)
	assert.EqualValues(t, 17, entry.Start)

	image, err := volume.Image()
	require.NoError(t, err)
	dirent := direntAt(t, image, 1)
	assert.Zero(t, dirent.Sectors)
	assert.EqualValues(t, 1, dirent.FirstSector)
	assert.EqualValues(t, 1, dirent.FirstTrack)
}

func TestPlaceFile__TooLarge(t *testing.T) {
	volume, _ := newVolume(t)

	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "BIG", Content: make([]byte, 255*256+1)})
	assert.ErrorIs(t, err, retrodisk.ErrFileTooLarge)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "MAX", Content: make([]byte, 255*256)})
	require.NoError(t, err)
	assert.Len(t, entry.Units, 255)
}

func TestPlaceFile__DirectoryFull(t *testing.T) {
	volume, _ := newVolume(t)
	for i := 0; i < trdos.MaxFiles; i++ {
		_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: fmt.Sprintf("F%d", i), Content: []byte{1}})
		require.NoError(t, err)
	}
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "ONEMORE", Content: []byte{1}})
	assert.ErrorIs(t, err, retrodisk.ErrDirectoryFull)

	image, err := volume.Image()
	require.NoError(t, err)
	last := direntAt(t, image, 127)
	assert.Equal(t, "F127", last.DisplayName())
	assert.EqualValues(t, 128, diskInfo(t, image).FileCount)
}

func TestPlaceFile__DiskFull(t *testing.T) {
	volume, driver := newVolume(t)
	for i := 0; i < 9; i++ {
		_, err := volume.PlaceFile(&retrodisk.FileRecord{
			Name:    fmt.Sprintf("PART%d", i),
			Content: make([]byte, 255*256),
		})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 249, driver.FreeSectors())

	before, err := driver.Store().Image()
	require.NoError(t, err)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "PART9", Content: make([]byte, 250*256)})
	assert.ErrorIs(t, err, retrodisk.ErrDiskFull)

	after, err := driver.Store().Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, before, after)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "LAST", Content: make([]byte, 249*256)})
	require.NoError(t, err)
	assert.Zero(t, driver.FreeSectors())
}
