package dfs_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	c "github.com/dargueta/retrodisk/drivers/common"
	"github.com/dargueta/retrodisk/drivers/dfs"
	rdtesting "github.com/dargueta/retrodisk/testing"
)

var buildTime = time.Date(1984, 2, 2, 0, 0, 0, 0, time.UTC)

func newVolume(t *testing.T, format, size string) (*c.Volume, *dfs.Driver) {
	layout, err := disks.Resolve("bbcMicro", format, size)
	require.NoError(t, err)
	driver, err := dfs.New(layout)
	require.NoError(t, err)
	volume, err := c.NewVolume(driver, "GAMES", buildTime)
	require.NoError(t, err)
	return volume, driver
}

func sectorAt(image []byte, block int) []byte {
	return image[block*dfs.SectorSize : (block+1)*dfs.SectorSize]
}

func catalogAt(t *testing.T, image []byte, block int) dfs.Catalog {
	catalog, err := dfs.ParseCatalog(sectorAt(image, block), sectorAt(image, block+1))
	require.NoError(t, err)
	return catalog
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		input     string
		directory byte
		name      string
	}{
		{"$.ELITE", '$', "ELITE"},
		{"b.loader", 'B', "LOADER"},
		{"game.bin", '$', "GAME"},
		{"$.GAME.BIN", '$', "GAME"},
		{"A", '$', "A"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.input, func(t *testing.T) {
			directory, name := dfs.SplitName(test.input)
			assert.Equal(t, test.directory, directory)
			assert.Equal(t, test.name, name)
		})
	}
}

func TestCatalog__BumpCycle(t *testing.T) {
	catalog := dfs.Catalog{Cycle: 0x09}
	catalog.BumpCycle()
	assert.EqualValues(t, 0x10, catalog.Cycle)

	catalog.Cycle = 0x99
	catalog.BumpCycle()
	assert.Zero(t, catalog.Cycle)
}

func TestCatalog__InsertKeepsDescendingOrder(t *testing.T) {
	catalog := dfs.Catalog{}
	for _, start := range []uint{2, 10, 6, 10} {
		catalog.Insert(dfs.CatalogEntry{Directory: '$', Name: fmt.Sprint(start), StartSector: start})
	}

	starts := make([]uint, len(catalog.Entries))
	for i, entry := range catalog.Entries {
		starts[i] = entry.StartSector
	}
	assert.Equal(t, []uint{10, 10, 6, 2}, starts)
}

func TestFormat__EmptySSD(t *testing.T) {
	volume, driver := newVolume(t, "ssd", "100KB")
	image, err := volume.Image()
	require.NoError(t, err)
	require.Len(t, image, 102400)
	assert.EqualValues(t, 398, driver.FreeSectors())

	assert.Equal(t, "GAMES   ", string(image[0:8]))
	info := sectorAt(image, 1)
	assert.Equal(t, "    ", string(info[0:4]))
	assert.Equal(t, []byte{0, 0, 0x01, 0x90}, info[4:8])

	catalog := catalogAt(t, image, 0)
	assert.Equal(t, "GAMES", catalog.Title)
	assert.EqualValues(t, 400, catalog.SideSectors)
	assert.Empty(t, catalog.Entries)
}

func TestPlaceFile__CatalogEntries(t *testing.T) {
	volume, _ := newVolume(t, "ssd", "100KB")
	elite := rdtesting.PatternContent(1000, 1)
	loader := rdtesting.PatternContent(300, 2)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "$.ELITE", Content: elite})
	require.NoError(t, err)
	assert.Equal(t, "$.ELITE", entry.Name)
	assert.Equal(t, []uint32{2, 3, 4, 5}, entry.Units)
	assert.Equal(t, 232, entry.LastBlockBytes)

	entry, err = volume.PlaceFile(&retrodisk.FileRecord{
		Name:        "b.loader",
		LoadAddress: 0x1900,
		Content:     loader,
	})
	require.NoError(t, err)
	assert.Equal(t, "B.LOADER", entry.Name)
	assert.EqualValues(t, 6, entry.Start)

	image, err := volume.Image()
	require.NoError(t, err)

	names := sectorAt(image, 0)
	info := sectorAt(image, 1)
	assert.EqualValues(t, 0x02, info[4])
	assert.EqualValues(t, 16, info[5])

	// Highest start sector first.
	assert.Equal(t, "LOADER B", string(names[8:16]))
	assert.Equal(t, []byte{0x00, 0x19, 0x00, 0x19, 0x2C, 0x01, 0x00, 0x06}, info[8:16])
	assert.Equal(t, "ELITE  $", string(names[16:24]))
	assert.Equal(t, []byte{0x00, 0x0E, 0x00, 0x0E, 0xE8, 0x03, 0xCC, 0x02}, info[16:24])

	catalog := catalogAt(t, image, 0)
	require.Len(t, catalog.Entries, 2)
	assert.Equal(t, "B.LOADER", catalog.Entries[0].DisplayName())
	assert.EqualValues(t, 0x1900, catalog.Entries[0].Load)
	assert.EqualValues(t, dfs.DefaultAddress, catalog.Entries[1].Exec)
	assert.EqualValues(t, 1000, catalog.Entries[1].Length)
	assert.EqualValues(t, 2, catalog.Entries[1].StartSector)

	rdtesting.AssertSameBytes(t, elite, image[2*256:2*256+1000])
	rdtesting.AssertSameBytes(t, loader, image[6*256:6*256+300])
}

func TestPlaceFile__StartSectorHighBits(t *testing.T) {
	volume, _ := newVolume(t, "ssd", "200KB")
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "BIG", Content: make([]byte, 300*256)})
	require.NoError(t, err)
	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "SMALL", Content: []byte{1}})
	require.NoError(t, err)
	assert.EqualValues(t, 302, entry.Start)

	image, err := volume.Image()
	require.NoError(t, err)
	info := sectorAt(image, 1)
	assert.EqualValues(t, 0x03, info[6])
	assert.EqualValues(t, 0x20, info[7])
	assert.EqualValues(t, 0x01, info[8+6]&0x03)
	assert.EqualValues(t, 0x2E, info[8+7])
	assert.EqualValues(t, 302, catalogAt(t, image, 0).Entries[0].StartSector)
}

func TestPlaceFile__EmptyFileTakesNoSectors(t *testing.T) {
	volume, driver := newVolume(t, "ssd", "100KB")
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "ONE", Content: []byte{1}})
	require.NoError(t, err)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "EMPTY"})
	require.NoError(t, err)
	assert.Empty(t, entry.Units)
	assert.EqualValues(t, 3, entry.Start)
	assert.EqualValues(t, 397, driver.FreeSectors())

	catalog := driver.Catalog(0)
	require.Len(t, catalog.Entries, 2)
	assert.Equal(t, "EMPTY", catalog.Entries[0].Name)
	assert.Zero(t, catalog.Entries[0].Length)
}

func TestPlaceFile__TooLarge(t *testing.T) {
	volume, _ := newVolume(t, "ssd", "200KB")
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "HUGE", Content: make([]byte, dfs.MaxAddress+1)})
	assert.ErrorIs(t, err, retrodisk.ErrFileTooLarge)
}

func TestPlaceFile__DiskFull(t *testing.T) {
	volume, driver := newVolume(t, "ssd", "100KB")
	before, err := driver.Store().Image()
	require.NoError(t, err)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "HUGE", Content: make([]byte, 399*256)})
	assert.ErrorIs(t, err, retrodisk.ErrDiskFull)

	after, err := driver.Store().Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, before, after)
	assert.Empty(t, driver.Catalog(0).Entries)

	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "FITS", Content: make([]byte, 398*256)})
	require.NoError(t, err)
	assert.Zero(t, driver.FreeSectors())
}

func TestPlaceFile__DirectoryFull(t *testing.T) {
	volume, _ := newVolume(t, "ssd", "100KB")
	for i := 0; i < dfs.MaxFiles; i++ {
		_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: fmt.Sprintf("F%d", i), Content: []byte{1}})
		require.NoError(t, err)
	}
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "EXTRA", Content: []byte{1}})
	assert.ErrorIs(t, err, retrodisk.ErrDirectoryFull)

	image, err := volume.Image()
	require.NoError(t, err)
	catalog := catalogAt(t, image, 0)
	require.Len(t, catalog.Entries, dfs.MaxFiles)
	assert.Equal(t, "F30", catalog.Entries[0].Name)
	assert.EqualValues(t, 0x31, catalog.Cycle)
}

func TestDSD__Format(t *testing.T) {
	volume, driver := newVolume(t, "dsd", "200KB")
	image, err := volume.Image()
	require.NoError(t, err)
	require.Len(t, image, 204800)
	assert.EqualValues(t, 796, driver.FreeSectors())

	for _, block := range []int{0, 10} {
		catalog := catalogAt(t, image, block)
		assert.Equal(t, "GAMES", catalog.Title)
		assert.EqualValues(t, 400, catalog.SideSectors)
	}

	regions := driver.Regions()
	require.Len(t, regions, 2)
	assert.EqualValues(t, 0, regions[0].FirstBlock)
	assert.EqualValues(t, 10, regions[1].FirstBlock)
}

func TestDSD__TracksInterleave(t *testing.T) {
	volume, _ := newVolume(t, "dsd", "200KB")
	content := rdtesting.PatternContent(20*256, 4)

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "LONG", Content: content})
	require.NoError(t, err)
	require.Len(t, entry.Units, 20)

	image, err := volume.Image()
	require.NoError(t, err)
	tests := []struct {
		sector int
		block  int
	}{
		{2, 2},
		{9, 9},
		{10, 20},
		{19, 29},
		{20, 40},
		{21, 41},
	}
	for _, test := range tests {
		offset := (test.sector - 2) * 256
		rdtesting.AssertSameBytes(t, content[offset:offset+256], sectorAt(image, test.block))
	}
}

func TestDSD__SpillsToSecondSide(t *testing.T) {
	volume, driver := newVolume(t, "dsd", "200KB")
	_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "FILL", Content: make([]byte, 398*256)})
	require.NoError(t, err)

	content := rdtesting.PatternContent(256, 7)
	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "NEXT", Content: content})
	require.NoError(t, err)
	assert.EqualValues(t, 402, entry.Start)
	assert.Equal(t, []uint32{402}, entry.Units)

	image, err := volume.Image()
	require.NoError(t, err)
	rdtesting.AssertSameBytes(t, content, sectorAt(image, 12))

	side1 := catalogAt(t, image, 10)
	require.Len(t, side1.Entries, 1)
	assert.EqualValues(t, 2, side1.Entries[0].StartSector)
	assert.Equal(t, driver.Catalog(1).Entries, side1.Entries)
}

func TestDSD__SpillsWhenCatalogFull(t *testing.T) {
	volume, _ := newVolume(t, "dsd", "200KB")
	for i := 0; i < dfs.MaxFiles; i++ {
		_, err := volume.PlaceFile(&retrodisk.FileRecord{Name: fmt.Sprintf("A%d", i), Content: []byte{1}})
		require.NoError(t, err)
	}

	entry, err := volume.PlaceFile(&retrodisk.FileRecord{Name: "B0", Content: []byte{2}})
	require.NoError(t, err)
	assert.EqualValues(t, 402, entry.Start)

	for i := 1; i < dfs.MaxFiles; i++ {
		_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: fmt.Sprintf("B%d", i), Content: []byte{2}})
		require.NoError(t, err)
	}
	_, err = volume.PlaceFile(&retrodisk.FileRecord{Name: "C0", Content: []byte{3}})
	assert.ErrorIs(t, err, retrodisk.ErrDirectoryFull)
}
