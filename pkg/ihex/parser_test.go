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
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFormatError(t *testing.T, err error, line int) *FormatError {
	t.Helper()
	require.Error(t, err)
	var fe *FormatError
	require.True(t, errors.As(err, &fe), "want *FormatError, got %T: %v", err, err)
	assert.Equal(t, line, fe.Line)
	return fe
}

func TestParseLineExample(t *testing.T) {
	rec, err := ParseLine(":0300300002337A1E", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Line)
	assert.Equal(t, uint16(0x0030), rec.Address)
	assert.Equal(t, Data, rec.Kind)
	assert.Equal(t, []byte{0x02, 0x33, 0x7A}, rec.Data)
	assert.Equal(t, byte(0x1E), rec.Checksum)
}

func TestParseLineLowerCase(t *testing.T) {
	rec, err := ParseLine(":0300300002337a1e\r\n", 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x33, 0x7A}, rec.Data)
	assert.Equal(t, ":0300300002337A1E", rec.Encode())
}

func TestParseLineEndOfFile(t *testing.T) {
	rec, err := ParseLine(":00000001FF", 9)
	require.NoError(t, err)
	assert.Equal(t, EndOfFile, rec.Kind)
	assert.Empty(t, rec.Data)
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		detail string
	}{
		{"no colon", "0300300002337A1E", "does not start with ':'"},
		{"empty", "", "does not start with ':'"},
		{"bad count digit", ":G300300002337A1E", "invalid byte count"},
		{"only colon", ":", "invalid byte count"},
		{"short payload", ":0300300002337A", "invalid byte count"},
		{"long payload", ":0300300002337A1E00", "invalid byte count"},
		{"odd length", ":0300300002337A1E0", "invalid byte count"},
		{"bad address", ":03003X0002337A1E", "invalid address"},
		{"bad kind digit", ":030030Z002337A1E", "invalid record type"},
		{"unknown kind", ":00000006FA", "invalid record type 0x06"},
		{"bad data digit", ":030030000233QA1E", "invalid data byte 2"},
		{"bad checksum digit", ":0300300002337A1Q", "invalid checksum"},
		{"checksum mismatch", ":0300300002337A1F", "invalid checksum 0x1F, expected 0x1E"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.input, 7)
			fe := requireFormatError(t, err, 7)
			assert.Contains(t, fe.Detail, tt.detail)
			assert.True(t, strings.HasPrefix(err.Error(), "line 7: "))
		})
	}
}

func randomRecord(rng *rand.Rand, line int) *Record {
	data := make([]byte, rng.Intn(33))
	rng.Read(data)
	rec := &Record{
		Line:    line,
		Address: uint16(rng.Intn(0x10000)),
		Kind:    Data,
		Data:    data,
	}
	rec.Checksum = Checksum(rec.Address, rec.Kind, rec.Data)
	return rec
}

func TestChecksumReproducesWireByte(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		want := randomRecord(rng, i+1)
		got, err := ParseLine(want.Encode(), want.Line)
		require.NoError(t, err, want.Encode())
		assert.Equal(t, want, got)
		assert.Equal(t, Checksum(got.Address, got.Kind, got.Data), got.Checksum)
	}
}

func TestSingleDigitFlipIsDetected(t *testing.T) {
	const line = 12
	text := ":0300300002337A1E"
	// payload starts after ':' + count + address + kind
	first := 1 + 2 + 4 + 2
	for pos := first; pos < len(text); pos++ {
		orig, _ := nibble(text[pos])
		for d := byte(0); d < 16; d++ {
			if d == orig {
				continue
			}
			flipped := text[:pos] + string(hexDigits[d]) + text[pos+1:]
			_, err := ParseLine(flipped, line)
			requireFormatError(t, err, line)
		}
	}
}

func TestParseDocument(t *testing.T) {
	lines := []string{
		"# firmware for the test board",
		"",
		":020000040000FA",
		":0300300002337A1E",
		":00000001FF",
		"this line is never examined",
	}
	recs, err := ParseDocument(lines)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 3, recs[0].Line)
	assert.Equal(t, 4, recs[1].Line)
	assert.Equal(t, EndOfFile, recs[2].Kind)
	assert.Equal(t, 5, recs[2].Line)
}

func TestParseDocumentErrorKeepsLineNumbering(t *testing.T) {
	lines := []string{
		"# comment",
		"",
		"   ",
		":0300300002337A1F",
	}
	_, err := ParseDocument(lines)
	requireFormatError(t, err, 4)
}

func TestParseDocumentRejectsStrayText(t *testing.T) {
	_, err := ParseDocument([]string{":0300300002337A1E", "garbage"})
	fe := requireFormatError(t, err, 2)
	assert.Contains(t, fe.Detail, "':'")
}

func TestReaderStopsAtEndOfFile(t *testing.T) {
	input := ":0300300002337A1E\n:00000001FF\n:not even close\n"
	rd := NewReader(strings.NewReader(input))

	rec, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, Data, rec.Kind)

	rec, err = rd.Next()
	require.NoError(t, err)
	assert.Equal(t, EndOfFile, rec.Kind)
	assert.Equal(t, 2, rd.Line())

	_, err = rd.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, rd.Line())
}

func TestReaderWithoutEndOfFile(t *testing.T) {
	recs, err := ParseReader(strings.NewReader(":0300300002337A1E\n\n"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReaderErrorIsFinal(t *testing.T) {
	rd := NewReader(strings.NewReader("\n:0300300002337A1F\n:00000001FF\n"))
	_, err := rd.Next()
	requireFormatError(t, err, 2)
	_, err = rd.Next()
	assert.Equal(t, io.EOF, err)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("testdata/does-not-exist.hex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open hex file")
}

func TestRecordKindString(t *testing.T) {
	assert.Equal(t, "extended linear address", ExtendedLinearAddress.String())
	assert.Equal(t, "unknown (0x09)", RecordKind(9).String())
	assert.False(t, RecordKind(6).Known())
}
