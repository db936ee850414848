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
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Skippable reports whether a source line carries no record: blank lines
// and '#' comments. Skipped lines still count for line numbering.
func Skippable(text string) bool {
	text = strings.TrimSpace(text)
	return len(text) == 0 || text[0] == '#'
}

// ParseLine parses and validates a single record. The line number is used
// only to tag errors and the returned record.
//
// Record layout after the leading colon, in hex digit pairs:
//
//	BB AAAA TT DD...DD CC
//
// count, address, kind, count payload bytes, checksum.
func ParseLine(text string, line int) (*Record, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 || text[0] != ':' {
		return nil, formatErrorf(line, "does not start with ':'")
	}
	body := text[1:]

	count, err := decodeByte(body, 0)
	if err != nil {
		return nil, formatErrorf(line, "invalid byte count: %v", err)
	}
	rest := body[2:]
	if len(rest)%2 != 0 || len(rest)/2 != int(count)+overhead {
		return nil, formatErrorf(line, "invalid byte count: declared %d data bytes, line holds %d hex digits after the count",
			count, len(rest))
	}

	address, err := decodeWord(rest, 0)
	if err != nil {
		return nil, formatErrorf(line, "invalid address: %v", err)
	}

	k, err := decodeByte(rest, 4)
	if err != nil {
		return nil, formatErrorf(line, "invalid record type: %v", err)
	}
	kind := RecordKind(k)
	if !kind.Known() {
		return nil, formatErrorf(line, "invalid record type 0x%02X", k)
	}

	data := make([]byte, count)
	for i := range data {
		if data[i], err = decodeByte(rest, 6+2*i); err != nil {
			return nil, formatErrorf(line, "invalid data byte %d: %v", i, err)
		}
	}

	got, err := decodeByte(rest, 6+2*int(count))
	if err != nil {
		return nil, formatErrorf(line, "invalid checksum: %v", err)
	}
	if want := Checksum(address, kind, data); got != want {
		return nil, formatErrorf(line, "invalid checksum 0x%02X, expected 0x%02X", got, want)
	}

	return &Record{
		Line:     line,
		Address:  address,
		Kind:     kind,
		Data:     data,
		Checksum: got,
	}, nil
}

// ParseDocument parses lines in order and returns every record up to and
// including the EndOfFile record. Lines after it are not examined.
func ParseDocument(lines []string) ([]*Record, error) {
	records := make([]*Record, 0, len(lines))
	for i, text := range lines {
		if Skippable(text) {
			continue
		}
		rec, err := ParseLine(text, i+1)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		if rec.Kind == EndOfFile {
			break
		}
	}
	return records, nil
}

// A RecordSource yields records in file order and io.EOF when done.
type RecordSource interface {
	Next() (*Record, error)
}

// Reader is a pull parser over Intel HEX text. Lines are read only on
// demand, so nothing past the EndOfFile record is ever consumed.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	done    bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next record, or io.EOF after the EndOfFile record or at
// the end of the input. Any other error is final.
func (rd *Reader) Next() (*Record, error) {
	if rd.done {
		return nil, io.EOF
	}
	for rd.scanner.Scan() {
		rd.line++
		text := rd.scanner.Text()
		if Skippable(text) {
			continue
		}
		rec, err := ParseLine(text, rd.line)
		if err != nil {
			rd.done = true
			return nil, err
		}
		if rec.Kind == EndOfFile {
			rd.done = true
		}
		return rec, nil
	}
	rd.done = true
	if err := rd.scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading line %d", rd.line+1)
	}
	return nil, io.EOF
}

// Line returns the number of the last line read.
func (rd *Reader) Line() int {
	return rd.line
}

// ParseReader reads every record from r.
func ParseReader(r io.Reader) ([]*Record, error) {
	rd := NewReader(r)
	var records []*Record
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// ParseFile reads every record from the named file.
func ParseFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open hex file")
	}
	defer f.Close()
	return ParseReader(f)
}

// SliceSource adapts already parsed records to a RecordSource.
type SliceSource struct {
	records []*Record
	pos     int
}

func NewSliceSource(records []*Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next() (*Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
