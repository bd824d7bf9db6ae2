package disks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
)

func TestLayoutsMatchNativeSize(t *testing.T) {
	rows := disks.Compatibility()
	require.NotEmpty(t, rows)

	for _, row := range rows {
		row := row
		t.Run(row.System+"/"+row.Format+"/"+row.Size, func(t *testing.T) {
			layout, err := disks.Resolve(row.System, row.Format, row.Size)
			require.NoError(t, err)
			assert.EqualValues(t, row.ImageBytes, layout.DataBytes())
			assert.NotZero(t, layout.BytesPerBlock)
			assert.NotEmpty(t, layout.Driver)
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	first, err := disks.Resolve("c64", "d64", "170KB")
	require.NoError(t, err)
	second, err := disks.Resolve("c64", "d64", "170KB")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 683, first.TotalBlocks)
}

func TestResolveUnsupported(t *testing.T) {
	cases := []struct {
		system, format, size string
	}{
		{"amiga500", "adf", "1.44MB"},
		{"amiga500", "adf", "1.76MB"},
		{"pc", "img", "880KB"},
		{"c64", "d64", "340KB"},
		{"nope", "adf", "880KB"},
		{"appleII", "hdv", "140KB"},
	}

	for _, tc := range cases {
		_, err := disks.Resolve(tc.system, tc.format, tc.size)
		assert.ErrorIs(t, err, retrodisk.ErrUnsupportedSizeForFormat, "%v", tc)
	}
}

func TestSizeClassesKnown(t *testing.T) {
	for _, row := range disks.Compatibility() {
		_, err := disks.GetSizeClass(row.Size)
		assert.NoError(t, err, row.Size)
	}

	_, err := disks.GetSizeClass("3MB")
	assert.ErrorIs(t, err, retrodisk.ErrInvalidArgument)
}

func TestFormatsAndSizesFor(t *testing.T) {
	assert.Equal(t, []string{"po", "2mg", "hdv"}, disks.FormatsFor("appleII"))
	assert.Equal(t, []string{"140KB", "800KB", "32MB"}, disks.SizesFor("appleII", "po"))
	assert.Equal(t, []string{"trd", "dsk"}, disks.FormatsFor("zxSpectrum"))
	assert.Empty(t, disks.SizesFor("amiga500", "st"))
}

func TestBlockToCHS(t *testing.T) {
	layout, err := disks.Resolve("pc", "img", "1.44MB")
	require.NoError(t, err)

	track, head, sector, err := layout.BlockToCHS(0)
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 0, 0}, []uint{track, head, sector})

	track, head, sector, err = layout.BlockToCHS(18*3 + 5)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 1, 5}, []uint{track, head, sector})

	_, _, _, err = layout.BlockToCHS(2880)
	assert.ErrorIs(t, err, retrodisk.ErrArgumentOutOfRange)

	hdv, err := disks.Resolve("appleII", "hdv", "32MB")
	require.NoError(t, err)
	_, _, _, err = hdv.BlockToCHS(0)
	assert.ErrorIs(t, err, retrodisk.ErrInvalidArgument)
}

func TestRegions(t *testing.T) {
	layout, err := disks.Resolve("appleII", "po", "140KB")
	require.NoError(t, err)

	withRegions := layout.WithRegions(
		disks.Region{Kind: disks.RegionBoot, FirstBlock: 0, Blocks: 2},
		disks.Region{Kind: disks.RegionDirectory, FirstBlock: 2, Blocks: 4},
		disks.Region{Kind: disks.RegionAllocationTable, FirstBlock: 5, Blocks: 2},
	)
	assert.Empty(t, layout.Regions, "original layout must not change")
	assert.EqualValues(t, 7, withRegions.ReservedBlockCount())
	assert.True(t, withRegions.Regions[1].Contains(5))
	assert.False(t, withRegions.Regions[1].Contains(6))
	assert.Equal(t, "allocation-table", disks.RegionAllocationTable.String())
}

func TestSanitizeVolumeName(t *testing.T) {
	cases := []struct {
		system   string
		input    string
		expected string
	}{
		{"appleII", "my disk", "MYDISK"},
		{"appleII", "1st.disk", "A1ST.DISK"},
		{"appleII", "123456789012345678", "A12345678901234"},
		{"appleII", "", "DISK"},
		{"appleII", "$$$", "DISK"},
		{"c64", "hello, world!", "HELLO, WORLD!"},
		{"amiga500", "Work_Disk-1", "WORK_DISK-1"},
		{"pc", "my.label", "MYLABEL"},
		{"atari800", "abcdefghijk", "ABCDEFGH"},
		{"bbcMicro", "games disk 2", "GAMESDISK2"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.system+"/"+tc.input, func(t *testing.T) {
			actual, err := disks.SanitizeVolumeName(tc.system, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}

	_, err := disks.SanitizeVolumeName("c128", "X")
	assert.ErrorIs(t, err, retrodisk.ErrInvalidArgument)
}

func TestNameRulesPlaceholderTruncated(t *testing.T) {
	charset, err := disks.CharsetByName("alnum")
	require.NoError(t, err)

	rules := disks.NameRules{Charset: charset, MaxLength: 3, Placeholder: "FILE"}
	assert.Equal(t, "FIL", rules.Sanitize("***"))
	assert.Equal(t, "ABC", rules.Sanitize("a-b-c-d"))

	_, err = disks.CharsetByName("ebcdic")
	assert.Error(t, err)
}
