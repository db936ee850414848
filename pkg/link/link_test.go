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

package link

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// fakePort implements just the parts of serial.Port that Link uses.
// Anything else panics through the nil embedded interface.
type fakePort struct {
	serial.Port

	rx       []byte
	readErrs []error // returned, in order, before any data
	written  []byte
	dtr, rts bool
	timeouts []time.Duration
	closed   bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return 0, err
	}
	if len(f.rx) == 0 {
		return 0, nil
	}
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) SetDTR(v bool) error               { f.dtr = v; return nil }
func (f *fakePort) SetRTS(v bool) error               { f.rts = v; return nil }
func (f *fakePort) ResetInputBuffer() error           { f.rx = nil; return nil }
func (f *fakePort) Close() error                      { f.closed = true; return nil }
func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.timeouts = append(f.timeouts, t)
	return nil
}

func newTestLink(port *fakePort) *Link {
	log, _ := test.NewNullLogger()
	return newLink(port, DefaultConfig(), log)
}

func TestReadForReturnsByte(t *testing.T) {
	port := &fakePort{rx: []byte{'g', 'y'}}
	l := newTestLink(port)

	b, err := l.ReadFor(time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte('g'), b)
	b, err = l.Read()
	require.NoError(t, err)
	assert.Equal(t, byte('y'), b)

	// the timeout is only handed to the port when it changes
	assert.Equal(t, []time.Duration{time.Second}, port.timeouts)
}

func TestReadForTimeout(t *testing.T) {
	l := newTestLink(&fakePort{})
	_, err := l.ReadFor(20 * time.Millisecond)
	var nre NoResponseError
	require.True(t, errors.As(err, &nre))
	assert.Equal(t, 20*time.Millisecond, time.Duration(nre))
	assert.Contains(t, err.Error(), "no response after 20ms")
}

func TestReadRetriesEINTR(t *testing.T) {
	port := &fakePort{rx: []byte{0x42}, readErrs: []error{syscall.Errno(4), syscall.Errno(4)}}
	l := newTestLink(port)
	b, err := l.ReadFor(time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)
}

func TestReadErrorIsWrapped(t *testing.T) {
	boom := errors.New("device unplugged")
	l := newTestLink(&fakePort{readErrs: []error{boom}})
	_, err := l.ReadFor(time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestWriteReleaseClose(t *testing.T) {
	port := &fakePort{dtr: true, rts: true, rx: []byte{1, 2, 3}}
	l := newTestLink(port)

	require.NoError(t, l.Write('r'))
	assert.Equal(t, []byte{'r'}, port.written)

	require.NoError(t, l.ResetInput())
	assert.Empty(t, port.rx)

	require.NoError(t, l.Release())
	assert.False(t, port.dtr)
	assert.False(t, port.rts)

	require.NoError(t, l.Close())
	assert.True(t, port.closed)
	assert.Error(t, l.Close())
	assert.Error(t, l.Write(0))
}

func TestParseParity(t *testing.T) {
	for in, want := range map[string]serial.Parity{
		"":     serial.NoParity,
		"none": serial.NoParity,
		"EVEN": serial.EvenParity,
		"o":    serial.OddParity,
	} {
		got, err := ParseParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseParity("mark")
	assert.Error(t, err)
	assert.Equal(t, "even", ParityName(serial.EvenParity))
}

func TestPortsFromDetails(t *testing.T) {
	ports := portsFromDetails([]*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A9XX"},
		{Name: "/dev/ttyS0"},
	})
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyS0", ports[0].String())
	assert.Equal(t, "/dev/ttyUSB1 [USB 0403:6001 serial A9XX]", ports[1].String())
}
