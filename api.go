package retrodisk

import (
	"time"
)

// FileRecord is one input file. Either Content or Loader must be set; if
// Content is nil the Loader is called once when the file is placed.
type FileRecord struct {
	Name string
	Type FileType
	// LoadAddress overrides the default load address on formats that store one
	// (ProDOS aux type, DFS load/exec, TR-DOS start). 0 means use the default.
	LoadAddress uint32
	Content     []byte
	Loader      func() ([]byte, error)
}

// Bytes returns the file's content, invoking the loader if needed. Loader
// failures are reported as [ErrReadSourceFailed].
func (r *FileRecord) Bytes() ([]byte, error) {
	if r.Content != nil {
		return r.Content, nil
	}
	if r.Loader == nil {
		return []byte{}, nil
	}

	data, err := r.Loader()
	if err != nil {
		return nil, ErrReadSourceFailed.Wrap(err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// DirectoryEntry describes a file after it was placed in an image.
type DirectoryEntry struct {
	// Name is the name as stored on disk, after sanitization and any renaming.
	Name string
	// SourceName is the name of the FileRecord this entry was created from.
	SourceName string
	Type       FileType
	// TypeCode is the format's native type code (ProDOS file type, CBM file
	// type byte, TR-DOS type letter, and so on).
	TypeCode uint16
	Size     int
	// Start is the format's native start pointer. Its meaning depends on the
	// format: block, cluster, granule, or linear sector number.
	Start uint32
	// Units lists every allocation unit the file occupies, including index,
	// header and extension blocks. Units are in the format's own numbering.
	Units []uint32
	// LastBlockBytes is the true number of content bytes in the last data
	// block of the chain.
	LastBlockBytes int
	Created        time.Time
}

// BlockCount returns the number of allocation units the file occupies.
func (e *DirectoryEntry) BlockCount() int {
	return len(e.Units)
}

// SkippedFile reports a file that could not be placed and why.
type SkippedFile struct {
	Name string
	Err  error
}
