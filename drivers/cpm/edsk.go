package cpm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/retrodisk"
)

const (
	DiskInfoSize   = 256
	TrackInfoSize  = 256
	DiskSignature  = "EXTENDED CPC DSK File\r\nDisk-Info\r\n"
	TrackSignature = "Track-Info\r\n"
	Creator        = "RETRODISK"
	SectorSizeCode = 2
	Gap3Length     = 0x4E
	maxSectorInfos = 29
	maxTrackSizes  = 204
)

// RawDiskInfo is the header of an EDSK image.
type RawDiskInfo struct {
	Signature  [34]byte
	Creator    [14]byte
	Tracks     uint8
	Sides      uint8
	Unused     uint16
	TrackSizes [maxTrackSizes]uint8
}

// RawSectorInfo describes one sector in a Track-Info block.
type RawSectorInfo struct {
	Track      uint8
	Side       uint8
	ID         uint8
	SizeCode   uint8
	Status1    uint8
	Status2    uint8
	DataLength uint16
}

// RawTrackInfo precedes the sector data of every track.
type RawTrackInfo struct {
	Signature   [12]byte
	Unused      [4]byte
	Track       uint8
	Side        uint8
	Unused2     uint16
	SizeCode    uint8
	SectorCount uint8
	Gap3        uint8
	Filler      uint8
	Sectors     [maxSectorInfos]RawSectorInfo
}

// Container lays out a flat image of 512-byte sectors as an EDSK file.
// Sectors are taken in cylinder order, alternating sides within a cylinder.
type Container struct {
	Tracks        uint
	Sides         uint
	FirstSectorID uint8
}

func (box Container) trackBytes() int {
	return TrackInfoSize + SectorsPerTrack*SectorSize
}

// Wrap builds the EDSK image.
func (box Container) Wrap(raw []byte) ([]byte, error) {
	trackCount := int(box.Tracks * box.Sides)
	if len(raw) != trackCount*SectorsPerTrack*SectorSize {
		return nil, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"image is %d bytes, expected %d tracks of %d bytes",
				len(raw),
				trackCount,
				SectorsPerTrack*SectorSize))
	}
	if trackCount > maxTrackSizes {
		return nil, retrodisk.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("EDSK holds at most %d tracks, got %d", maxTrackSizes, trackCount))
	}

	output := make([]byte, DiskInfoSize+trackCount*box.trackBytes())

	info := RawDiskInfo{Tracks: uint8(box.Tracks), Sides: uint8(box.Sides)}
	copy(info.Signature[:], DiskSignature)
	copy(info.Creator[:], Creator)
	for i := 0; i < trackCount; i++ {
		info.TrackSizes[i] = uint8(box.trackBytes() / 256)
	}
	if err := binary.Write(bytewriter.New(output), binary.LittleEndian, &info); err != nil {
		return nil, err
	}

	for index := 0; index < trackCount; index++ {
		offset := DiskInfoSize + index*box.trackBytes()
		header := RawTrackInfo{
			Track:       uint8(uint(index) / box.Sides),
			Side:        uint8(uint(index) % box.Sides),
			SizeCode:    SectorSizeCode,
			SectorCount: SectorsPerTrack,
			Gap3:        Gap3Length,
			Filler:      FillByte,
		}
		copy(header.Signature[:], TrackSignature)
		for s := 0; s < SectorsPerTrack; s++ {
			header.Sectors[s] = RawSectorInfo{
				Track:      header.Track,
				Side:       header.Side,
				ID:         box.FirstSectorID + uint8(s),
				SizeCode:   SectorSizeCode,
				DataLength: SectorSize,
			}
		}

		writer := bytewriter.New(output[offset : offset+TrackInfoSize])
		if err := binary.Write(writer, binary.LittleEndian, &header); err != nil {
			return nil, err
		}

		start := index * SectorsPerTrack * SectorSize
		copy(output[offset+TrackInfoSize:], raw[start:start+SectorsPerTrack*SectorSize])
	}
	return output, nil
}

// Unwrap reads an EDSK image back into a flat sector image, putting each
// track's sectors in ID order.
func Unwrap(image []byte) ([]byte, error) {
	var info RawDiskInfo
	if len(image) < DiskInfoSize {
		return nil, retrodisk.ErrInvalidArgument.WithMessage("image too short for a disk header")
	}
	if err := binary.Read(bytes.NewReader(image), binary.LittleEndian, &info); err != nil {
		return nil, err
	}
	if string(info.Signature[:]) != DiskSignature {
		return nil, retrodisk.ErrInvalidArgument.WithMessage("not an extended DSK image")
	}

	var raw []byte
	offset := DiskInfoSize
	for i := 0; i < int(info.Tracks)*int(info.Sides); i++ {
		size := int(info.TrackSizes[i]) * 256
		if offset+size > len(image) {
			return nil, retrodisk.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("track %d runs past the end of the image", i))
		}

		var header RawTrackInfo
		err := binary.Read(bytes.NewReader(image[offset:]), binary.LittleEndian, &header)
		if err != nil {
			return nil, err
		}

		sectors := make([][]byte, header.SectorCount)
		lowest := uint8(0xFF)
		for s := 0; s < int(header.SectorCount); s++ {
			if header.Sectors[s].ID < lowest {
				lowest = header.Sectors[s].ID
			}
		}
		dataOffset := offset + TrackInfoSize
		for s := 0; s < int(header.SectorCount); s++ {
			sector := header.Sectors[s]
			length := int(sector.DataLength)
			slot := int(sector.ID - lowest)
			if slot >= len(sectors) {
				return nil, retrodisk.ErrInvalidArgument.WithMessage(
					fmt.Sprintf("track %d has non-consecutive sector IDs", i))
			}
			sectors[slot] = image[dataOffset : dataOffset+length]
			dataOffset += length
		}
		for _, sector := range sectors {
			raw = append(raw, sector...)
		}
		offset += size
	}
	return raw, nil
}
