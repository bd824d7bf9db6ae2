package common

import (
	"encoding/binary"
	"time"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/disks"
)

// Rules is the small set of facts that distinguishes one file system's
// placement procedure from another's.
type Rules struct {
	Name      string
	ByteOrder binary.ByteOrder
	// Fill is the value every byte of a fresh image is set to.
	Fill byte
	// Overhead is the number of bytes of each data block used for linkage
	// rather than content. 0 when linkage is kept in an external table.
	Overhead int
	// Names describes the file name charset and length.
	Names disks.NameRules
	// Checksum, if set, is applied to every block written during a placement
	// step, after all other writes to it.
	Checksum func(block BlockID, data []byte)
}

// PendingFile carries one file through the placement pipeline. Drivers fill in
// the fields as each step runs.
type PendingFile struct {
	Record  *retrodisk.FileRecord
	Content []byte
	Created time.Time

	// Name is the on-disk name, set by Plan.
	Name string
	// Units is the number of allocation units needed, set by Plan.
	Units uint
	// Chain is the list of units, set by Allocate.
	Chain Chain
	// Entry is the resulting directory entry, completed by AddEntry.
	Entry retrodisk.DirectoryEntry
}

// FileSystem is implemented by every format driver. A [Volume] calls the steps
// in order for each file and undoes the block writes of a failed file on its
// own; drivers only need to be able to put their in-memory state back through
// the closure returned by Checkpoint.
type FileSystem interface {
	Rules() Rules
	Store() *BlockStore
	// Regions lists the blocks that never hold file data.
	Regions() []disks.Region

	// Format writes the boot area, an empty directory and an empty allocation
	// table.
	Format(volumeName string, created time.Time) error

	// Plan picks the on-disk name and computes the number of units needed.
	// It fails with ErrDirectoryFull, ErrFileTooLarge or ErrNameCollision.
	Plan(file *PendingFile) error
	// Allocate reserves units for the file, writing in-block links as it goes
	// if the format has them. It fails with ErrDiskFull.
	Allocate(file *PendingFile) error
	// WriteData splits the content over the chain, including per-block
	// overhead and the end-of-chain sentinel.
	WriteData(file *PendingFile) error
	// AddEntry writes the directory entry and completes file.Entry.
	AddEntry(file *PendingFile) error
	// UpdateSummary rewrites free counts, file counts and allocation tables.
	UpdateSummary() error

	// Checkpoint captures driver state; calling the returned function puts it
	// back.
	Checkpoint() func()

	// Finalize does any last writes before the image is extracted.
	Finalize() error
}

// ImageWrapper is implemented by drivers whose image file isn't just the block
// store, e.g. because it needs a track-based container.
type ImageWrapper interface {
	WrapImage(raw []byte) ([]byte, error)
}

// Volume runs the placement pipeline for one image.
type Volume struct {
	fs      FileSystem
	created time.Time
	entries []retrodisk.DirectoryEntry
}

// NewVolume formats `fs` and returns a volume ready to accept files.
func NewVolume(fs FileSystem, volumeName string, created time.Time) (*Volume, error) {
	volume := &Volume{fs: fs, created: created}
	err := volume.transaction(func() error {
		if err := fs.Format(volumeName, created); err != nil {
			return err
		}
		return fs.UpdateSummary()
	})
	if err != nil {
		return nil, err
	}
	return volume, nil
}

// FileSystem returns the driver behind the volume.
func (volume *Volume) FileSystem() FileSystem {
	return volume.fs
}

// Entries lists the files placed so far, in placement order.
func (volume *Volume) Entries() []retrodisk.DirectoryEntry {
	result := make([]retrodisk.DirectoryEntry, len(volume.entries))
	copy(result, volume.entries)
	return result
}

// transaction runs `steps` with block journaling. If `steps` fails, every block
// it wrote is restored. On success the checksum hook runs over the written
// blocks.
func (volume *Volume) transaction(steps func() error) error {
	store := volume.fs.Store()
	if err := store.Begin(); err != nil {
		return err
	}

	if err := steps(); err != nil {
		if rollbackErr := store.Rollback(); rollbackErr != nil {
			return rollbackErr
		}
		return err
	}

	checksum := volume.fs.Rules().Checksum
	if checksum != nil {
		for _, blockID := range store.TouchedBlocks() {
			err := store.Update(blockID, func(data []byte) error {
				checksum(blockID, data)
				return nil
			})
			if err != nil {
				_ = store.Rollback()
				return err
			}
		}
	}

	store.Commit()
	return nil
}

// PlaceFile adds one file to the image. On failure the image, the allocation
// state and the directory are left as they were before the call.
func (volume *Volume) PlaceFile(record *retrodisk.FileRecord) (retrodisk.DirectoryEntry, error) {
	content, err := record.Bytes()
	if err != nil {
		return retrodisk.DirectoryEntry{}, err
	}

	file := &PendingFile{
		Record:  record,
		Content: content,
		Created: volume.created,
	}

	restore := volume.fs.Checkpoint()
	err = volume.transaction(func() error {
		steps := []func(*PendingFile) error{
			volume.fs.Plan,
			volume.fs.Allocate,
			volume.fs.WriteData,
			volume.fs.AddEntry,
		}
		for _, step := range steps {
			if err := step(file); err != nil {
				return err
			}
		}
		return volume.fs.UpdateSummary()
	})
	if err != nil {
		restore()
		return retrodisk.DirectoryEntry{}, err
	}

	entry := file.Entry
	entry.SourceName = record.Name
	entry.Type = record.Type
	entry.Size = len(content)
	if entry.Created.IsZero() {
		entry.Created = volume.created
	}
	if entry.Units == nil {
		entry.Units = file.Chain.Uint32s()
	}
	volume.entries = append(volume.entries, entry)
	return entry, nil
}

// Image finalizes the file system and returns the complete image.
func (volume *Volume) Image() ([]byte, error) {
	restore := volume.fs.Checkpoint()
	err := volume.transaction(volume.fs.Finalize)
	if err != nil {
		restore()
		return nil, err
	}

	raw, err := volume.fs.Store().Image()
	if err != nil {
		return nil, err
	}
	if wrapper, ok := volume.fs.(ImageWrapper); ok {
		return wrapper.WrapImage(raw)
	}
	return raw, nil
}
