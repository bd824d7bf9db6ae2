package prodos

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/retrodisk"
)

const TwoImgHeaderSize = 64

// Image formats in the 2IMG header.
const (
	TwoImgDOSOrder    = 0
	TwoImgProDOSOrder = 1
	TwoImgNibbles     = 2
)

// RawTwoImgHeader is the 64-byte header of a .2mg file.
type RawTwoImgHeader struct {
	Magic             [4]byte
	Creator           [4]byte
	HeaderSize        uint16
	Version           uint16
	ImageFormat       uint32
	Flags             uint32
	Blocks            uint32
	DataOffset        uint32
	DataLength        uint32
	CommentOffset     uint32
	CommentLength     uint32
	CreatorDataOffset uint32
	CreatorDataLength uint32
	Reserved          [16]byte
}

// NewTwoImgHeader creates a header for a ProDOS-ordered image of
// `totalBlocks` blocks immediately following the header.
func NewTwoImgHeader(totalBlocks uint) RawTwoImgHeader {
	header := RawTwoImgHeader{
		HeaderSize:  TwoImgHeaderSize,
		Version:     1,
		ImageFormat: TwoImgProDOSOrder,
		Blocks:      uint32(totalBlocks),
		DataOffset:  TwoImgHeaderSize,
		DataLength:  uint32(totalBlocks * BlockSize),
	}
	copy(header.Magic[:], "2IMG")
	copy(header.Creator[:], "RDSK")
	return header
}

// Bytes serializes the header.
func (h *RawTwoImgHeader) Bytes() []byte {
	return serialize(h, TwoImgHeaderSize)
}

// ParseTwoImgHeader decodes and sanity-checks a 2IMG header.
func ParseTwoImgHeader(data []byte) (RawTwoImgHeader, error) {
	var header RawTwoImgHeader
	if len(data) < TwoImgHeaderSize {
		return header, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("2IMG header needs %d bytes, got %d", TwoImgHeaderSize, len(data)))
	}

	err := binary.Read(bytes.NewReader(data[:TwoImgHeaderSize]), binary.LittleEndian, &header)
	if err != nil {
		return header, err
	}
	if string(header.Magic[:]) != "2IMG" {
		return header, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad 2IMG signature %q", header.Magic[:]))
	}
	return header, nil
}
