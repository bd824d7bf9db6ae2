package fat

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/noxer/bytewriter"
)

// RawDirent is the on-disk representation of a directory entry, broken down into its
// constituent fields.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// DateToInt converts a date to the FAT on-disk representation. Dates before
// 1980 are clamped to 1980-01-01.
func DateToInt(t time.Time) uint16 {
	if t.Year() < 1980 {
		return (1 << 5) | 1
	}
	return uint16((t.Year()-1980)<<9) | uint16(int(t.Month())<<5) | uint16(t.Day())
}

// TimeToInt converts the time of day to the FAT on-disk representation, which
// has a resolution of two seconds.
func TimeToInt(t time.Time) uint16 {
	if t.Year() < 1980 {
		return 0
	}
	return uint16(t.Hour()<<11) | uint16(t.Minute()<<5) | uint16(t.Second()/2)
}

// DateFromInt converts the FAT on-disk representation of a date into a Go time.Time
// object.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts converts a FAT date and time into a time.Time.
func TimestampFromParts(datePart uint16, timePart uint16) time.Time {
	date := DateFromInt(datePart)
	seconds := int(timePart&0x001f) * 2
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	return time.Date(date.Year(), date.Month(), date.Day(), hours, minutes, seconds, 0, time.UTC)
}

// NewRawDirent builds a directory entry for a regular file.
func NewRawDirent(base, extension string, firstCluster uint32, size uint32, created time.Time) RawDirent {
	dirent := RawDirent{
		AttributeFlags:   AttrArchived,
		CreatedTime:      TimeToInt(created),
		CreatedDate:      DateToInt(created),
		LastAccessedDate: DateToInt(created),
		FirstClusterHigh: uint16(firstCluster >> 16),
		LastModifiedTime: TimeToInt(created),
		LastModifiedDate: DateToInt(created),
		FirstClusterLow:  uint16(firstCluster),
		FileSize:         size,
	}
	copy(dirent.Name[:], padField(base, 8))
	copy(dirent.Extension[:], padField(extension, 3))

	// A leading 0xE5 marks a deleted entry; the real byte is stored as 0x05.
	if dirent.Name[0] == 0xE5 {
		dirent.Name[0] = 0x05
	}
	return dirent
}

// NewLabelDirent builds the volume label entry.
func NewLabelDirent(label string, created time.Time) RawDirent {
	dirent := RawDirent{
		AttributeFlags:   AttrVolumeLabel,
		LastModifiedTime: TimeToInt(created),
		LastModifiedDate: DateToInt(created),
	}
	padded := padField(label, 11)
	copy(dirent.Name[:], padded[:8])
	copy(dirent.Extension[:], padded[8:])
	return dirent
}

// Bytes serializes the entry.
func (d *RawDirent) Bytes() []byte {
	output := make([]byte, DirentSize)
	writer := bytewriter.New(output)
	// The buffer is exactly the size of the struct so this can't fail.
	_ = binary.Write(writer, binary.LittleEndian, d)
	return output
}

// NewRawDirentFromBytes deserializes 32 bytes into a RawDirent struct for further
// processing.
func NewRawDirentFromBytes(data []byte) RawDirent {
	dirent := RawDirent{
		AttributeFlags:    data[11],
		NTReserved:        data[12],
		CreatedTimeTenths: data[13],
		CreatedTime:       binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(data[16:18]),
		LastAccessedDate:  binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(data[20:22]),
		LastModifiedTime:  binary.LittleEndian.Uint16(data[22:24]),
		LastModifiedDate:  binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:   binary.LittleEndian.Uint16(data[26:28]),
		FileSize:          binary.LittleEndian.Uint32(data[28:32]),
	}

	copy(dirent.Name[:], data[:8])
	copy(dirent.Extension[:], data[8:11])
	return dirent
}

// FullName returns the entry's name in NAME.EXT form.
func (d *RawDirent) FullName() string {
	name := strings.TrimRight(string(d.Name[:]), " ")
	if name != "" && name[0] == 0x05 {
		name = "\xe5" + name[1:]
	}
	ext := strings.TrimRight(string(d.Extension[:]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// FirstCluster combines the two halves of the start cluster.
func (d *RawDirent) FirstCluster() uint32 {
	return (uint32(d.FirstClusterHigh) << 16) | uint32(d.FirstClusterLow)
}

func padField(value string, width int) []byte {
	field := []byte(strings.Repeat(" ", width))
	copy(field, value)
	return field
}
