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
	"strings"
)

// Byte level hex digit handling. Every access is bounds checked and a bad
// digit is an error, never a zero.

const hexDigits = "0123456789ABCDEF"

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// decodeByte decodes the two hex digits at s[pos:pos+2].
func decodeByte(s string, pos int) (byte, error) {
	if pos < 0 || pos+2 > len(s) {
		return 0, fmt.Errorf("offset %d: truncated hex byte", pos)
	}
	hi, ok := nibble(s[pos])
	if !ok {
		return 0, fmt.Errorf("offset %d: invalid hex digit %q", pos, s[pos])
	}
	lo, ok := nibble(s[pos+1])
	if !ok {
		return 0, fmt.Errorf("offset %d: invalid hex digit %q", pos+1, s[pos+1])
	}
	return hi<<4 | lo, nil
}

// decodeWord decodes the four hex digits at s[pos:pos+4], big endian.
func decodeWord(s string, pos int) (uint16, error) {
	hi, err := decodeByte(s, pos)
	if err != nil {
		return 0, err
	}
	lo, err := decodeByte(s, pos+2)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

func appendHexByte(sb *strings.Builder, b byte) {
	sb.WriteByte(hexDigits[b>>4])
	sb.WriteByte(hexDigits[b&0x0F])
}
