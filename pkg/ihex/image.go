/*
Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package ihex

import (
	"fmt"
	"io"
)

// Chunk is a run of program bytes at an absolute address. Chunks come out
// of an Image in file order; they are never sorted, merged or filtered.
// Non-data records other than address records are passed through with
// their Kind set so the consumer can decide what they mean.
type Chunk struct {
	Line    int
	Kind    RecordKind
	Address uint32
	Data    []byte
}

// End returns the address one past the last byte of the chunk.
func (c Chunk) End() uint32 {
	return c.Address + uint32(len(c.Data))
}

func (c Chunk) String() string {
	return fmt.Sprintf("line %d: %s 0x%05X..0x%05X (%d bytes)", c.Line, c.Kind, c.Address, c.End(), len(c.Data))
}

// LinearHigh validates an ExtendedLinearAddress record and returns the
// upper 16 address bits it carries.
func LinearHigh(rec *Record) (uint16, error) {
	if rec.Kind != ExtendedLinearAddress {
		return 0, formatErrorf(rec.Line, "%s record is not an extended linear address", rec.Kind)
	}
	if rec.Address != 0 {
		return 0, formatErrorf(rec.Line, "extended linear address record has address 0x%04X, must be 0", rec.Address)
	}
	if len(rec.Data) != 2 {
		return 0, formatErrorf(rec.Line, "extended linear address record has %d data bytes, must be 2", len(rec.Data))
	}
	return uint16(rec.Data[0])<<8 | uint16(rec.Data[1]), nil
}

// Image resolves a record stream into chunks. It is single pass: once Next
// has returned io.EOF or an error it keeps doing so.
type Image struct {
	src  RecordSource
	high uint16
	err  error
}

func NewImage(src RecordSource) *Image {
	return &Image{src: src}
}

// Next returns the next chunk. Extended linear address records update the
// high address and produce nothing. The EndOfFile record ends the image.
func (im *Image) Next() (Chunk, error) {
	for im.err == nil {
		rec, err := im.src.Next()
		if err != nil {
			im.err = err
			break
		}
		switch rec.Kind {
		case EndOfFile:
			im.err = io.EOF
		case ExtendedLinearAddress:
			high, err := LinearHigh(rec)
			if err != nil {
				im.err = err
				break
			}
			im.high = high
		default:
			return Chunk{
				Line:    rec.Line,
				Kind:    rec.Kind,
				Address: uint32(im.high)<<16 | uint32(rec.Address),
				Data:    rec.Data,
			}, nil
		}
	}
	return Chunk{}, im.err
}

// High returns the current upper address bits.
func (im *Image) High() uint16 {
	return im.high
}

// Collect drains src into a slice of chunks.
func Collect(src RecordSource) ([]Chunk, error) {
	im := NewImage(src)
	var chunks []Chunk
	for {
		c, err := im.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
}
