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

// Package viewer prints a human readable listing of an Intel-HEX file:
// address records, unprogrammed gaps, the data itself, and the PIC18
// GOTO instructions found in it, which is usually enough to see where
// the reset and interrupt vectors point.
package viewer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gmofishsauce/picload/pkg/ihex"
)

// Viewer writes the listing. The zero value is not usable; call New.
type Viewer struct {
	w *bufio.Writer

	// Boundary, when nonzero, marks data at or above it as protected.
	Boundary uint32

	high uint16
	last uint32
}

func New(w io.Writer) *Viewer {
	return &Viewer{w: bufio.NewWriter(w)}
}

// View lists every record of src up to the end of file record.
func (v *Viewer) View(src ihex.RecordSource) error {
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			v.w.Flush()
			return err
		}
		if rec.Kind == ihex.EndOfFile {
			break
		}
		if err := v.Record(rec); err != nil {
			v.w.Flush()
			return err
		}
	}
	return v.w.Flush()
}

// Record lists one record. Output is buffered until View returns or
// Flush is called.
func (v *Viewer) Record(rec *ihex.Record) error {
	switch rec.Kind {
	case ihex.ExtendedLinearAddress:
		high, err := ihex.LinearHigh(rec)
		if err != nil {
			return err
		}
		v.high = high
		fmt.Fprintf(v.w, "=== %s: %04X\n", rec.Kind, high)
		return nil
	case ihex.Data:
	default:
		fmt.Fprintf(v.w, "=== %s: %s\n", rec.Kind, spaced(rec.Data))
		return nil
	}

	address := uint32(v.high)<<16 | uint32(rec.Address)
	if address > v.last {
		fmt.Fprintf(v.w, "::: From %04X to %04X (%d bytes): <unprogrammed>\n", v.last, address-1, address-v.last)
	}
	v.last = address

	fmt.Fprintf(v.w, "::: From %04X to %04X (%d bytes): %s", address, address+uint32(len(rec.Data))-1, len(rec.Data), spaced(rec.Data))
	if v.Boundary != 0 && address+uint32(len(rec.Data)) > v.Boundary {
		fmt.Fprint(v.w, " <protected>")
	}
	fmt.Fprintln(v.w)

	if dst, ok := DecodeGoto(address, rec.Data); ok {
		fmt.Fprintf(v.w, "    GOTO %05X\n", dst)
	}
	v.last += uint32(len(rec.Data))
	return nil
}

func (v *Viewer) Flush() error {
	return v.w.Flush()
}

// DecodeGoto recognizes a PIC18 two-word GOTO at the start of data. Program
// words are little endian; the first word is EFkk and the second Fkkk, and
// the 20 bit word address they hold is doubled to give a byte address.
// Only word aligned addresses are considered.
func DecodeGoto(address uint32, data []byte) (uint32, bool) {
	if address%4 != 0 || len(data) < 4 {
		return 0, false
	}
	hi1, lo1, hi2, lo2 := data[1], data[0], data[3], data[2]
	if hi1 != 0xEF || hi2&0xF0 != 0xF0 {
		return 0, false
	}
	word := uint32(hi2&0x0F)<<16 | uint32(lo2)<<8 | uint32(lo1)
	return word << 1, true
}

func spaced(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}
