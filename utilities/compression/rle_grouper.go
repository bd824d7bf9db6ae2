package compression

import (
	"bufio"
	"io"
)

// ByteRun is one run of a single byte value.
type ByteRun struct {
	Byte byte
	// RunLength is the number of occurrences of Byte, always at least 1 for a
	// real run.
	RunLength int
}

// InvalidRLERun is returned alongside an error, including io.EOF.
var InvalidRLERun = ByteRun{}

// RLEGrouper splits a byte stream into runs of identical bytes.
type RLEGrouper struct {
	rd *bufio.Reader
}

func NewRLEGrouper(rd io.Reader) *RLEGrouper {
	return &RLEGrouper{rd: bufio.NewReader(rd)}
}

// GetNextRun returns the next run in the stream. At the end of the stream it
// returns [InvalidRLERun] and io.EOF.
func (grouper *RLEGrouper) GetNextRun() (ByteRun, error) {
	first, err := grouper.rd.ReadByte()
	if err != nil {
		return InvalidRLERun, err
	}

	run := ByteRun{Byte: first, RunLength: 1}
	for {
		next, err := grouper.rd.ReadByte()
		if err == io.EOF {
			return run, nil
		} else if err != nil {
			return InvalidRLERun, err
		}

		if next != first {
			// Not part of this run; leave it for the next call.
			_ = grouper.rd.UnreadByte()
			return run, nil
		}
		run.RunLength++
	}
}
