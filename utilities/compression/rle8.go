package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Longest run a single RLE8 group can describe: the byte twice, plus up to 255
// more.
const maxRLE8Group = 257

// CompressRLE8 reads bytes from the input and writes RLE8-compressed data to the
// output until the input is exhausted. The return value is the number of bytes
// written, only valid if no error occurred.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	grouper := NewRLEGrouper(input)
	written := int64(0)

	emit := func(chunk ...byte) error {
		n, err := output.Write(chunk)
		written += int64(n)
		return err
	}

	for {
		run, err := grouper.GetNextRun()
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, err
		}

		for remaining := run.RunLength; remaining > 0; {
			switch {
			case remaining == 1:
				err = emit(run.Byte)
				remaining = 0
			case remaining >= maxRLE8Group:
				err = emit(run.Byte, run.Byte, 255)
				remaining -= maxRLE8Group
			default:
				err = emit(run.Byte, run.Byte, byte(remaining-2))
				remaining = 0
			}
			if err != nil {
				return written, err
			}
		}
	}
}

// DecompressRLE8 reverses [CompressRLE8].
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	previous := -1
	written := int64(0)

	for {
		current, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return written, nil
		} else if err != nil {
			return written, fmt.Errorf("error reading input: %w", err)
		}

		chunk := []byte{current}
		if int(current) == previous {
			repeatCount, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				return written, fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					current)
			} else if err != nil {
				return written, fmt.Errorf("error reading input: %w", err)
			}

			// The first copy of the pair was already written on the previous
			// iteration.
			chunk = bytes.Repeat(chunk, int(repeatCount)+1)
			previous = -1
		} else {
			previous = int(current)
		}

		n, err := output.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
