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

// Package monitor is a serial console for the target: whatever the target
// sends is copied to an output, and lines typed by the user are sent to the
// target. It is used on its own and after an upload, when the freshly
// written program starts talking on the same line.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Poll is how long the monitor waits for the target before checking the
// user's input, and the other way around.
const Poll = 50 * time.Millisecond

// Port is the serial line. *link.Link is one.
type Port interface {
	ReadFor(timeout time.Duration) (byte, error)
	Write(b byte) error
}

// Monitor copies between a Port and the user. It is not safe for
// concurrent use; Run owns it until it returns.
type Monitor struct {
	port     Port
	out      io.Writer
	input    *Input
	log      logrus.FieldLogger
	detailed bool

	received int
	sent     int
}

// New returns a monitor writing to out. Input may be nil, in which case
// nothing is ever sent to the target.
func New(port Port, out io.Writer, input *Input, log logrus.FieldLogger) *Monitor {
	return &Monitor{port: port, out: out, input: input, log: log}
}

// Detailed switches to one line per received byte showing its value in
// binary, hex and decimal.
func (m *Monitor) Detailed(on bool) *Monitor {
	m.detailed = on
	return m
}

// Run copies until ctx is done, the interactive user ends the input, or
// the port fails. The first two are a normal end and return nil.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("listening")
	defer func() {
		m.log.WithFields(logrus.Fields{"received": m.received, "sent": m.sent}).Info("monitor closed")
	}()

	for ctx.Err() == nil {
		b, err := m.port.ReadFor(Poll)
		switch {
		case err == nil:
			m.received++
			if err := m.show(b); err != nil {
				return err
			}
		case isTimeout(err):
		default:
			return err
		}

		if m.input == nil {
			continue
		}
		line, ok := m.input.get(time.Millisecond)
		if !ok {
			if m.input.Interactive() {
				return nil
			}
			m.input = nil
			continue
		}
		for i := 0; i < len(line); i++ {
			if err := m.port.Write(line[i]); err != nil {
				return err
			}
			m.sent++
		}
	}
	return nil
}

func (m *Monitor) show(b byte) error {
	if !m.detailed {
		_, err := m.out.Write([]byte{b})
		return err
	}
	_, err := fmt.Fprintln(m.out, Describe(b))
	return err
}

// Describe formats one received byte for the detailed display.
func Describe(b byte) string {
	s := fmt.Sprintf("Received: 0b%08b 0x%02X %3d", b, b, b)
	if printable(b) {
		s += fmt.Sprintf(" '%c'", b)
	}
	return s
}

// Printable excludes space and all other whitespace.
func printable(b byte) bool {
	return b > ' ' && b < 0x7F
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
