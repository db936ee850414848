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

package viewer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/gmofishsauce/picload/pkg/ihex"
)

const BytesPerLine = 16

// Dump writes the memory image of chunks as a table, BytesPerLine bytes to
// a row, with erased (pad) bytes where the image has none. Rows that are
// entirely erased are left out.
func Dump(w io.Writer, chunks []ihex.Chunk, pad byte) error {
	lo, hi, ok := ihex.Extent(chunks)
	if !ok {
		_, err := fmt.Fprintln(w, "no data")
		return err
	}
	lo -= lo % BytesPerLine
	if r := hi % BytesPerLine; r != 0 {
		hi += BytesPerLine - r
	}

	var image bytes.Buffer
	if err := ihex.WriteBinary(&image, chunks, lo, hi-lo, pad); err != nil {
		return err
	}
	mem := image.Bytes()
	erased := bytes.Repeat([]byte{pad}, BytesPerLine)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ADDR    DATA\n")
	for m := 0; m < len(mem); m += BytesPerLine {
		row := mem[m : m+BytesPerLine]
		if bytes.Equal(row, erased) {
			continue
		}
		fmt.Fprintf(bw, "0x%05X ", lo+uint32(m))
		for n, b := range row {
			fmt.Fprintf(bw, "%02X", b)
			if n != BytesPerLine-1 {
				fmt.Fprintf(bw, " ")
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
