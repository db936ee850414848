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

// Package ihex reads Intel HEX text into validated records and resolves
// them into an ordered sequence of absolute-addressed program chunks.
//
// Parsing is strict. Every malformed line, bad checksum or unknown record
// kind aborts the whole parse with a *FormatError naming the line. There
// is no skip-and-continue mode.
package ihex

import (
	"fmt"
	"strings"
)

type RecordKind uint8

const (
	Data RecordKind = iota
	EndOfFile
	ExtendedSegmentAddress
	StartSegmentAddress
	ExtendedLinearAddress
	StartLinearAddress

	// MaxKind is the highest record kind this profile accepts.
	MaxKind = StartLinearAddress
)

var kindNames = [...]string{
	Data:                   "data",
	EndOfFile:              "eof",
	ExtendedSegmentAddress: "extended segment address",
	StartSegmentAddress:    "start segment address",
	ExtendedLinearAddress:  "extended linear address",
	StartLinearAddress:     "start linear address",
}

func (k RecordKind) String() string {
	if k <= MaxKind {
		return kindNames[k]
	}
	return fmt.Sprintf("unknown (0x%02X)", uint8(k))
}

// Known reports whether k is one of the record kinds defined above.
func (k RecordKind) Known() bool {
	return k <= MaxKind
}

// Record is one validated line of an Intel HEX file. Address is the 16 bit
// address field exactly as written; it is combined with the high address
// context by Image.
type Record struct {
	Line     int // 1-based source line
	Address  uint16
	Kind     RecordKind
	Data     []byte
	Checksum byte
}

// Sizes of the fixed fields of a record, in bytes.
const (
	countSize    = 1
	addressSize  = 2
	kindSize     = 1
	checksumSize = 1

	// overhead is everything after the count except the payload.
	overhead = addressSize + kindSize + checksumSize
)

// Checksum returns the byte that must close a record with the given fields:
// the two's complement of the low byte of the sum of the count, both
// address bytes, the kind and every payload byte.
func Checksum(address uint16, kind RecordKind, data []byte) byte {
	crc := byte(len(data)) + byte(address>>8) + byte(address) + byte(kind)
	for _, b := range data {
		crc += b
	}
	return ^crc + 1
}

// Encode renders the record back into its canonical text form,
// upper case and without a line terminator.
func (r *Record) Encode() string {
	var sb strings.Builder
	sb.Grow(1 + 2*(countSize+overhead+len(r.Data)))
	sb.WriteByte(':')
	appendHexByte(&sb, byte(len(r.Data)))
	appendHexByte(&sb, byte(r.Address>>8))
	appendHexByte(&sb, byte(r.Address))
	appendHexByte(&sb, byte(r.Kind))
	for _, b := range r.Data {
		appendHexByte(&sb, b)
	}
	appendHexByte(&sb, r.Checksum)
	return sb.String()
}

func (r *Record) String() string {
	return fmt.Sprintf("line %d: %s @0x%04X [%d bytes]", r.Line, r.Kind, r.Address, len(r.Data))
}

// FormatError reports a malformed or unchecksummed line. It is always
// fatal to the parse that produced it.
type FormatError struct {
	Line   int
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Detail)
}

func formatErrorf(line int, format string, args ...interface{}) *FormatError {
	return &FormatError{Line: line, Detail: fmt.Sprintf(format, args...)}
}
