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

// Conversion of a validated image to other forms. The upload path never
// goes through here; this is for inspecting and archiving images.

import (
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// DefaultLineLength is the number of data bytes per record written by
// WriteHex when the caller passes 0.
const DefaultLineLength = 16

// Memory loads the data chunks into a gohex memory image. Overlapping
// chunks are an error here even though the uploader itself would catch
// them as an address regression.
func Memory(chunks []Chunk) (*gohex.Memory, error) {
	mem := gohex.NewMemory()
	for _, c := range chunks {
		switch c.Kind {
		case Data:
			if err := mem.AddBinary(c.Address, c.Data); err != nil {
				return nil, errors.Wrapf(err, "line %d", c.Line)
			}
		case StartLinearAddress:
			if len(c.Data) == 4 {
				mem.SetStartAddress(uint32(c.Data[0])<<24 | uint32(c.Data[1])<<16 |
					uint32(c.Data[2])<<8 | uint32(c.Data[3]))
			}
		}
	}
	return mem, nil
}

// Extent returns the lowest data address and the address one past the
// highest data byte. ok is false if there is no data.
func Extent(chunks []Chunk) (lo, hi uint32, ok bool) {
	for _, c := range chunks {
		if c.Kind != Data || len(c.Data) == 0 {
			continue
		}
		if !ok || c.Address < lo {
			lo = c.Address
		}
		if !ok || c.End() > hi {
			hi = c.End()
		}
		ok = true
	}
	return lo, hi, ok
}

// WriteBinary writes size bytes of the image starting at start. Holes are
// filled with pad. A size of 0 means up to the end of the data.
func WriteBinary(w io.Writer, chunks []Chunk, start, size uint32, pad byte) error {
	mem, err := Memory(chunks)
	if err != nil {
		return err
	}
	if size == 0 {
		_, hi, ok := Extent(chunks)
		if !ok || hi <= start {
			return errors.New("no data at or above start address")
		}
		size = hi - start
	}
	_, err = w.Write(mem.ToBinary(start, size, pad))
	return errors.Wrap(err, "write binary")
}

// WriteHex writes the image back out as normalized Intel HEX: contiguous
// chunks merged, fixed record length, extended linear address records
// where needed and an EndOfFile record.
func WriteHex(w io.Writer, chunks []Chunk, lineLength byte) error {
	if lineLength == 0 {
		lineLength = DefaultLineLength
	}
	mem, err := Memory(chunks)
	if err != nil {
		return err
	}
	return errors.Wrap(mem.DumpIntelHex(w, lineLength), "write hex")
}
