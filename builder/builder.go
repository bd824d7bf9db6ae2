// Package builder is the single entry point for producing disk images. It
// resolves a layout, picks the file system driver for it, places every file it
// can and reports the ones it had to skip.
package builder

import (
	"fmt"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
	"github.com/dargueta/retrodisk/drivers/amiga"
	"github.com/dargueta/retrodisk/drivers/atari"
	"github.com/dargueta/retrodisk/drivers/cbm"
	c "github.com/dargueta/retrodisk/drivers/common"
	"github.com/dargueta/retrodisk/drivers/cpm"
	"github.com/dargueta/retrodisk/drivers/dfs"
	"github.com/dargueta/retrodisk/drivers/fat"
	"github.com/dargueta/retrodisk/drivers/prodos"
	"github.com/dargueta/retrodisk/drivers/rsdos"
	"github.com/dargueta/retrodisk/drivers/trdos"
)

// Options tweak a build without changing what goes on the disk.
type Options struct {
	// Timestamp is used for every date written to the image. The zero value
	// means the time the build starts.
	Timestamp time.Time
}

func (o Options) created() time.Time {
	if o.Timestamp.IsZero() {
		return time.Now()
	}
	return o.Timestamp
}

// Request describes one image to build.
type Request struct {
	System     string
	Format     string
	Size       string
	VolumeName string
	Files      []retrodisk.FileRecord
	Options    Options
}

// Result is a finished image along with what went into it.
type Result struct {
	// Layout has the regions reported by the driver filled in.
	Layout  disks.Layout
	Image   []byte
	Entries []retrodisk.DirectoryEntry
	Skipped []retrodisk.SkippedFile
}

// Strategy builds images for one (system, format) pair.
type Strategy struct {
	System  string
	Format  string
	Options Options
}

////////////////////////////////////////////////////////////////////////////////

// NewFileSystem creates the driver for a resolved layout.
func NewFileSystem(layout disks.Layout) (c.FileSystem, error) {
	switch layout.Driver {
	case "prodos":
		return prodos.New(layout)
	case "cbm":
		return cbm.New(layout)
	case "amiga":
		return amiga.New(layout)
	case "atari":
		return atari.New(layout)
	case "fat":
		return fat.New(layout)
	case "trdos":
		return trdos.New(layout)
	case "rsdos":
		return rsdos.New(layout)
	case "dfs":
		return dfs.New(layout)
	case "cpm":
		return cpm.New(layout)
	}
	return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
		fmt.Sprintf("no driver named %q", layout.Driver))
}

// Lookup returns the strategy for a (system, format) pair. It fails with
// [retrodisk.ErrUnsupportedSizeForFormat] if the system doesn't use that
// format at any size.
func Lookup(system, format string) (*Strategy, error) {
	if _, err := disks.GetSystem(system); err != nil {
		return nil, err
	}
	for _, known := range disks.FormatsFor(system) {
		if known == format {
			return &Strategy{System: system, Format: format}, nil
		}
	}
	return nil, retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
		fmt.Sprintf("%s has no %s format", system, format))
}

// Sizes lists the size classes available for the strategy.
func (s *Strategy) Sizes() []string {
	return disks.SizesFor(s.System, s.Format)
}

// Build creates an image of the given size. Files that can't be placed are
// listed in [Result.Skipped]; any other failure aborts the build and no image
// is returned.
func (s *Strategy) Build(volumeName, size string, files []retrodisk.FileRecord) (*Result, error) {
	layout, err := disks.Resolve(s.System, s.Format, size)
	if err != nil {
		return nil, err
	}
	fs, err := NewFileSystem(layout)
	if err != nil {
		return nil, err
	}
	name, err := disks.SanitizeVolumeName(s.System, volumeName)
	if err != nil {
		return nil, err
	}

	volume, err := c.NewVolume(fs, name, s.Options.created())
	if err != nil {
		return nil, err
	}

	var skipped []retrodisk.SkippedFile
	for i := range files {
		if _, err = volume.PlaceFile(&files[i]); err != nil {
			if !retrodisk.IsPerFile(err) {
				return nil, err
			}
			skipped = append(skipped, retrodisk.SkippedFile{Name: files[i].Name, Err: err})
		}
	}

	image, err := volume.Image()
	if err != nil {
		return nil, err
	}

	return &Result{
		Layout:  layout.WithRegions(fs.Regions()...),
		Image:   image,
		Entries: volume.Entries(),
		Skipped: skipped,
	}, nil
}

// Build runs a whole request.
func Build(req Request) (*Result, error) {
	strategy, err := Lookup(req.System, req.Format)
	if err != nil {
		return nil, err
	}
	strategy.Options = req.Options
	return strategy.Build(req.VolumeName, req.Size, req.Files)
}
